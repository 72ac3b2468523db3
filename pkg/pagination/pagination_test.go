package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=0", DefaultLimit, 0},
		{"limit=-5&offset=-5", DefaultLimit, 0},
		{"limit=5000", MaxLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tc := range cases {
		got := paramsFor(t, tc.query)
		if got.Limit != tc.wantLimit || got.Offset != tc.wantOffset {
			t.Errorf("FromContext(%q) = %+v, want limit=%d offset=%d",
				tc.query, got, tc.wantLimit, tc.wantOffset)
		}
	}
}

func TestNewResponseHasMore(t *testing.T) {
	if r := NewResponse(nil, 50, 20, 0); !r.HasMore {
		t.Error("page 1 of 50 should have more")
	}
	if r := NewResponse(nil, 50, 20, 40); r.HasMore {
		t.Error("last page should not have more")
	}
}
