// Package qr adapts tokens and redemption codes to scannable images:
// rendering a payload as a PNG for on-screen display, and feeding decoded
// camera frames (or manually typed values) into a validation sink.
package qr

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrInvalidPayload is returned when there is nothing to encode.
var ErrInvalidPayload = errors.New("invalid qr payload")

// RenderOptions are the fixed rendering knobs: pixel size and error
// correction level.
type RenderOptions struct {
	// Size is the output image edge in pixels.
	Size int
	// Recovery is the error correction level. Medium suits screen-to-camera
	// scanning at short range.
	Recovery qrcode.RecoveryLevel
}

// DefaultRenderOptions renders a 256px code with medium error correction.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Size: 256, Recovery: qrcode.Medium}
}

// RenderPNG encodes payload as a QR code PNG.
func RenderPNG(payload string, opts RenderOptions) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrInvalidPayload
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	return qrcode.Encode(payload, opts.Recovery, opts.Size)
}
