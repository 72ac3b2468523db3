package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Khr29/MediScanQR/internal/platform/httperr"
)

// ErrAccountNotFound is returned by an AccountSource when the token subject
// no longer resolves to a live account.
var ErrAccountNotFound = errors.New("account not found")

// Identity is the authenticated caller attached to a request.
type Identity struct {
	AccountID uuid.UUID
	Role      Role
}

// AccountSource resolves a token subject to a live account. The role comes
// from this lookup, not from the token, so role changes and deactivation take
// effect on the next request rather than at token expiry.
type AccountSource interface {
	Lookup(ctx context.Context, id uuid.UUID) (Identity, error)
}

// AccountSourceFunc adapts a function to AccountSource.
type AccountSourceFunc func(ctx context.Context, id uuid.UUID) (Identity, error)

func (f AccountSourceFunc) Lookup(ctx context.Context, id uuid.UUID) (Identity, error) {
	return f(ctx, id)
}

type identityKey struct{}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(Identity)
	return ident, ok
}

// ContextWithIdentity is exposed for handler tests.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// bearerToken extracts the credential from an Authorization header. The
// scheme prefix is case-insensitive; a bare token without the prefix is
// rejected.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func resolve(c echo.Context, issuer *Issuer, source AccountSource, cache *AccountCache) (Identity, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := bearerToken(header)
	if !ok {
		return Identity{}, httperr.Unauthenticated("missing or malformed authorization header")
	}

	info, err := issuer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Identity{}, httperr.Unauthenticated("token expired")
		}
		return Identity{}, httperr.Unauthenticated("invalid token")
	}

	ctx := c.Request().Context()
	if ident, hit := cache.Get(ctx, info.SubjectID); hit {
		return ident, nil
	}

	ident, err := source.Lookup(ctx, info.SubjectID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Identity{}, httperr.Unauthenticated("account no longer active")
		}
		return Identity{}, httperr.Internal("account lookup failed", err)
	}
	cache.Put(ctx, ident)
	return ident, nil
}

// Authenticate verifies the bearer token and resolves the subject to a live
// account before letting the request through. Requests without a valid token
// are rejected with 401.
func Authenticate(issuer *Issuer, source AccountSource, cache *AccountCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, err := resolve(c, issuer, source, cache)
			if err != nil {
				return err
			}
			req := c.Request()
			c.SetRequest(req.WithContext(ContextWithIdentity(req.Context(), ident)))
			return next(c)
		}
	}
}

// AuthenticateOptional resolves an identity when an Authorization header is
// present but lets anonymous requests through untouched. Routes behind it
// decide per-request whether an identity is required; it exists solely for
// the relaxed development mode and is never mounted when that mode is off.
func AuthenticateOptional(issuer *Issuer, source AccountSource, cache *AccountCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			ident, err := resolve(c, issuer, source, cache)
			if err != nil {
				return err
			}
			req := c.Request()
			c.SetRequest(req.WithContext(ContextWithIdentity(req.Context(), ident)))
			return next(c)
		}
	}
}

// RequireRole authorizes the authenticated identity against an allow-list.
// An absent identity yields 401, a present one with the wrong role 403.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return httperr.Unauthenticated("authentication required")
			}
			if _, ok := allowed[ident.Role]; !ok {
				return httperr.Forbidden("insufficient role for this operation")
			}
			return next(c)
		}
	}
}
