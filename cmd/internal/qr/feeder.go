package qr

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ErrNoFrameSource is returned when a feeder is started without a camera
// decoder. Manual submission still works.
var ErrNoFrameSource = errors.New("no frame source available")

// FrameDecoder attempts to decode a 2D barcode from the current camera
// frame. ok=false means no code was found in this frame, which is the
// common case and not an error.
type FrameDecoder interface {
	DecodeFrame(ctx context.Context) (value string, ok bool, err error)
}

// Sink receives each decoded candidate. Returning an error stops the
// feeder; candidate dedup is the sink's concern.
type Sink func(ctx context.Context, p Payload) error

// ScanFeeder polls a FrameDecoder and feeds decoded candidates to a Sink.
// When no camera is available the manual Submit path covers the same
// flow with typed-in values.
type ScanFeeder struct {
	log      *slog.Logger
	decoder  FrameDecoder
	sink     Sink
	interval time.Duration
}

// NewScanFeeder constructs a feeder. decoder may be nil (manual entry
// only); sink is required.
func NewScanFeeder(log *slog.Logger, decoder FrameDecoder, sink Sink, interval time.Duration) (*ScanFeeder, error) {
	if sink == nil {
		return nil, ErrInvalidPayload
	}
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &ScanFeeder{log: log, decoder: decoder, sink: sink, interval: interval}, nil
}

// Run polls frames until ctx is done or the sink stops it. Decode misses
// are skipped silently; decode errors are logged and polling continues,
// since a camera glitch should not kill the scan session.
func (f *ScanFeeder) Run(ctx context.Context) error {
	if f.decoder == nil {
		return ErrNoFrameSource
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		value, ok, err := f.decoder.DecodeFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("qr.frame.decode.fail", "err", err)
			continue
		}
		if !ok {
			continue
		}

		p, err := DecodePayload(value)
		if err != nil {
			continue
		}
		if err := f.sink(ctx, p); err != nil {
			return err
		}
	}
}

// Submit routes a manually entered value through the same sink as a
// scanned frame. This is the degraded path when no camera is available.
func (f *ScanFeeder) Submit(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidPayload
	}
	p, err := DecodePayload(raw)
	if err != nil {
		return err
	}
	return f.sink(ctx, p)
}
