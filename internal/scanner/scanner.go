// Package scanner turns camera frames into decoded QR text.
//
// A Camera is opened once per scan. The resulting Stream is always closed
// before Scan returns, and on success it is closed before the result is
// delivered.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCameraBusy        = errors.New("camera busy")
)

// Stream yields camera frames until closed.
type Stream interface {
	// Next blocks until a frame arrives, the stream ends (io.EOF) or ctx is
	// done.
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Camera hands out frame streams.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Scanner analyses frames from a camera until one decodes.
type Scanner struct {
	decoder *Decoder
}

func New(decoder *Decoder) *Scanner {
	if decoder == nil {
		decoder = NewDecoder(0)
	}
	return &Scanner{decoder: decoder}
}

// Scan opens cam and analyses frames until one holds a QR code. The camera
// is released before onResult is called, and onResult is called at most
// once. Cancelling ctx stops analysis and releases the camera.
func (s *Scanner) Scan(ctx context.Context, cam Camera, onResult func(text string)) error {
	stream, err := cam.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := stream.Close(); err != nil {
				slog.Warn("Failed to release camera", "error", err)
			}
		})
	}
	defer release()

	for frames := 0; ; frames++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("Camera stream ended without a code", "frames", frames)
				return ErrNoCode
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		text, err := s.decoder.Decode(frame)
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				slog.Debug("Skipping frame", "frame", frames, "error", err)
			}
			continue
		}

		release()
		slog.Info("QR code detected", "frames", frames+1, "bytes", len(text))
		if onResult != nil {
			onResult(text)
		}
		return nil
	}
}

// Exclusive wraps cam so that only one stream can be open at a time. A
// second Open fails with ErrCameraBusy until the first stream is closed.
func Exclusive(cam Camera) Camera {
	return &exclusiveCamera{cam: cam}
}

type exclusiveCamera struct {
	cam  Camera
	mu   sync.Mutex
	held bool
}

func (e *exclusiveCamera) Open(ctx context.Context) (Stream, error) {
	e.mu.Lock()
	if e.held {
		e.mu.Unlock()
		return nil, ErrCameraBusy
	}
	e.held = true
	e.mu.Unlock()

	stream, err := e.cam.Open(ctx)
	if err != nil {
		e.unlock()
		return nil, err
	}
	return &exclusiveStream{Stream: stream, owner: e}, nil
}

func (e *exclusiveCamera) unlock() {
	e.mu.Lock()
	e.held = false
	e.mu.Unlock()
}

type exclusiveStream struct {
	Stream
	owner *exclusiveCamera
	once  sync.Once
}

func (s *exclusiveStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Stream.Close()
		s.owner.unlock()
	})
	return err
}
