package api

import (
	"fmt"

	"github.com/yuval/qrstamp/internal/config"
	"github.com/yuval/qrstamp/internal/qrcode"
)

// NewEncoder builds an encoder from the QR_* settings.
func NewEncoder(c config.QRConfig) (*qrcode.Encoder, error) {
	level, err := qrcode.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	fg, err := qrcode.ParseHexColor(c.Foreground)
	if err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	bg, err := qrcode.ParseHexColor(c.Background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	if c.Size <= 0 || c.Margin < 0 {
		return nil, fmt.Errorf("invalid size=%d margin=%d", c.Size, c.Margin)
	}
	return qrcode.NewEncoder(qrcode.Options{
		Size:       c.Size,
		Margin:     c.Margin,
		Foreground: fg,
		Background: bg,
		Level:      level,
	}), nil
}
