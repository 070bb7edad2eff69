package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
)

var (
	// ErrNoCode is returned when an image holds no readable QR code.
	ErrNoCode = errors.New("no qr code found")
	// ErrFrameTooLarge is returned for images whose header declares more
	// pixels than allowed.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Decoder reads QR codes from still images.
type Decoder struct {
	hints     map[gozxing.DecodeHintType]interface{}
	maxPixels int
}

// NewDecoder returns a decoder that refuses images above maxPixels. Zero
// means no limit.
func NewDecoder(maxPixels int) *Decoder {
	return &Decoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
		maxPixels: maxPixels,
	}
}

// Decode returns the text of the QR code in img.
func (d *Decoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}

	result, err := zxingqr.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		var re gozxing.ReaderException
		if errors.As(err, &re) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}
	return result.GetText(), nil
}

// DecodeReader decodes a PNG, JPEG or GIF image from r.
func (d *Decoder) DecodeReader(r io.Reader) (string, error) {
	img, err := ReadImage(r, d.maxPixels)
	if err != nil {
		return "", err
	}
	return d.Decode(img)
}

// ReadImage decodes a PNG, JPEG or GIF image. The header is checked first and
// images declaring more than maxPixels pixels fail with ErrFrameTooLarge
// before any pixel buffer is allocated. Zero maxPixels means no limit.
func ReadImage(r io.Reader, maxPixels int) (image.Image, error) {
	if maxPixels > 0 {
		var head bytes.Buffer
		cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrFrameTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
		// replay the header bytes DecodeConfig consumed
		r = io.MultiReader(&head, r)
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return img, nil
}
