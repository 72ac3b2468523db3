// Package qr renders prescription identifiers as QR code images and
// validates scanned payloads on the way back in.
package qr

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// pngSize is the square pixel size of rendered codes. Large enough for
// phone-camera scanning at pharmacy counters.
const pngSize = 256

// ErrBadPayload is returned when a scanned payload is not a prescription
// identifier.
var ErrBadPayload = fmt.Errorf("scan payload is not a prescription id")

// Encode renders the prescription id as a PNG QR code and returns it as a
// data URL suitable for direct embedding in an <img> tag.
func Encode(id uuid.UUID) (string, error) {
	png, err := qrcode.Encode(id.String(), qrcode.Medium, pngSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// DecodeAndValidate checks that a scanned payload has the shape of a
// prescription id and returns it in canonical form. It validates shape only;
// whether the prescription exists is the caller's concern.
func DecodeAndValidate(payload string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(payload)
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return id, nil
}
