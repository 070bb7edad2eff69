// Package form holds the state behind the generator form: the code, date and
// time a user entered and the payload and image derived from them.
package form

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/civil"

	"github.com/yuval/qrstamp/internal/payload"
)

// Renderer turns payload text into an image. *qrcode.Encoder satisfies it.
type Renderer interface {
	DataURL(text string) (string, error)
}

// Clipboard receives copied text.
type Clipboard interface {
	WriteAll(text string) error
}

// State is a snapshot of the form.
type State struct {
	Code  string
	Date  civil.Date
	Time  civil.Time
	Text  string
	Image string
}

// Controller owns one form. It is not safe for concurrent use.
type Controller struct {
	formatter  payload.Formatter
	renderer   Renderer
	digitsOnly bool
	state      State
}

type Options struct {
	Formatter payload.Formatter
	Renderer  Renderer
	// DigitsOnly strips non-digits from every code entered.
	DigitsOnly  bool
	DefaultTime civil.Time
}

func NewController(opts Options) *Controller {
	f := opts.Formatter
	if f == nil {
		f = payload.Human{}
	}
	return &Controller{
		formatter:  f,
		renderer:   opts.Renderer,
		digitsOnly: opts.DigitsOnly,
		state:      State{Time: opts.DefaultTime},
	}
}

func (c *Controller) SetCode(code string) {
	if c.digitsOnly {
		code = payload.FilterDigits(code)
	}
	c.state.Code = code
}

func (c *Controller) SetDate(d civil.Date) {
	c.state.Date = d
}

// SetTime parses HH:MM. Invalid input leaves the previous time in place.
func (c *Controller) SetTime(s string) error {
	t, err := payload.ParseClock(s)
	if err != nil {
		return err
	}
	c.state.Time = t
	return nil
}

// ApplyScan puts text decoded by the scanner into the code field as read.
// The digits-only filter applies to typed input only.
func (c *Controller) ApplyScan(text string) Notice {
	c.state.Code = text
	return NoticeScanned
}

func (c *Controller) Snapshot() State {
	return c.state
}

// Generate derives the payload text and renders it. On failure nothing is
// stored and the previous result stays visible.
func (c *Controller) Generate(ctx context.Context) Notice {
	text, err := c.formatter.Format(c.state.Code, c.state.Date, c.state.Time)
	switch {
	case errors.Is(err, payload.ErrMissingCode):
		return NoticeMissingCode
	case errors.Is(err, payload.ErrMissingDate):
		return NoticeMissingDate
	case err != nil:
		slog.ErrorContext(ctx, "Failed to format payload", "error", err)
		return NoticeEncodeFailed
	}

	if c.renderer == nil {
		slog.ErrorContext(ctx, "No QR renderer configured")
		return NoticeEncodeFailed
	}
	image, err := c.renderer.DataURL(text)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to generate QR code", "error", err, "bytes", len(text))
		return NoticeEncodeFailed
	}

	c.state.Text = text
	c.state.Image = image
	return NoticeGenerated
}

// Copy writes the generated text to clip.
func (c *Controller) Copy(ctx context.Context, clip Clipboard) Notice {
	if c.state.Text == "" {
		return NoticeNothingToCopy
	}
	if clip == nil {
		return NoticeCopyFailed
	}
	if err := clip.WriteAll(c.state.Text); err != nil {
		slog.ErrorContext(ctx, "Failed to copy", "error", err)
		return NoticeCopyFailed
	}
	return NoticeCopied
}
