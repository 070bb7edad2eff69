// Package qrcode renders payload text into QR code images with fixed
// styling.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

// ErrEncode wraps every failure to turn text into a code, e.g. content
// exceeding the capacity of the largest version.
var ErrEncode = errors.New("qr encode failed")

// Options fixes the visual parameters of rendered codes.
type Options struct {
	// Size is the width and height of the image in pixels.
	Size int
	// Margin is the quiet zone in modules.
	Margin     int
	Foreground color.Color
	Background color.Color
	Level      qrcode.RecoveryLevel
}

// DefaultOptions matches the look of the web page: 300px, 2 module margin,
// near-black on white, medium error correction.
func DefaultOptions() Options {
	return Options{
		Size:       300,
		Margin:     2,
		Foreground: color.RGBA{0x1a, 0x1a, 0x1a, 0xff},
		Background: color.RGBA{0xff, 0xff, 0xff, 0xff},
		Level:      qrcode.Medium,
	}
}

type Encoder struct {
	opts Options
}

func NewEncoder(opts Options) *Encoder {
	return &Encoder{opts: opts}
}

func (e *Encoder) Options() Options { return e.opts }

// Image renders text as a two colour paletted image. The image is at least
// Options.Size wide; it grows only when the code needs more pixels than that
// at one pixel per module.
func (e *Encoder) Image(text string) (*image.Paletted, error) {
	q, err := qrcode.New(text, e.opts.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	q.DisableBorder = true
	bits := q.Bitmap()

	modules := len(bits) + 2*e.opts.Margin
	scale := e.opts.Size / modules
	if scale < 1 {
		scale = 1
	}
	side := e.opts.Size
	if modules*scale > side {
		side = modules * scale
	}
	offset := (side-modules*scale)/2 + e.opts.Margin*scale

	img := image.NewPaletted(image.Rect(0, 0, side, side), color.Palette{e.opts.Background, e.opts.Foreground})
	for y, row := range bits {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0, y0 := offset+x*scale, offset+y*scale
			for dy := 0; dy < scale; dy++ {
				start := img.PixOffset(x0, y0+dy)
				for dx := 0; dx < scale; dx++ {
					img.Pix[start+dx] = 1
				}
			}
		}
	}
	return img, nil
}

// PNG renders text and encodes the image as PNG.
func (e *Encoder) PNG(text string) ([]byte, error) {
	img, err := e.Image(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: png: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// DataURL renders text as an inline data:image/png URL for <img src>.
func (e *Encoder) DataURL(text string) (string, error) {
	b, err := e.PNG(text)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Terminal renders text with half-block characters for a terminal.
// An empty string is returned when the text cannot be encoded.
func Terminal(text string) string {
	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		slog.Error("Error generating QR code", "error", err)
		return ""
	}
	return q.ToSmallString(false)
}

// ParseLevel maps L, M, Q and H to recovery levels.
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L":
		return qrcode.Low, nil
	case "M", "":
		return qrcode.Medium, nil
	case "Q":
		return qrcode.High, nil
	case "H":
		return qrcode.Highest, nil
	}
	return qrcode.Medium, fmt.Errorf("unknown error correction level %q", s)
}

// ParseHexColor accepts #rgb, #rrggbb and #rrggbbaa.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
