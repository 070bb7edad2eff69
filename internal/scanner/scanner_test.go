package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuval/qrstamp/internal/qrcode"
)

// memCamera serves a fixed list of frames and records its lifecycle.
type memCamera struct {
	frames  []image.Image
	openErr error
	block   bool

	mu     sync.Mutex
	opens  int
	closed int
}

func (c *memCamera) Open(ctx context.Context) (Stream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return &memStream{cam: c}, nil
}

func (c *memCamera) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens == c.closed
}

type memStream struct {
	cam  *memCamera
	next int
}

func (s *memStream) Next(ctx context.Context) (image.Image, error) {
	if s.next < len(s.cam.frames) {
		f := s.cam.frames[s.next]
		s.next++
		return f, nil
	}
	if s.cam.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

func (s *memStream) Close() error {
	s.cam.mu.Lock()
	s.cam.closed++
	s.cam.mu.Unlock()
	return nil
}

func qrFrame(t *testing.T, text string) image.Image {
	t.Helper()
	img, err := qrcode.NewEncoder(qrcode.DefaultOptions()).Image(text)
	require.NoError(t, err)
	return img
}

func blankFrame() image.Image {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestDecoderRoundTrip(t *testing.T) {
	for _, text := range []string{"12345 - 01/06/2024 14:30", "ABC|202406011430"} {
		got, err := NewDecoder(0).Decode(qrFrame(t, text))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestDecoderNoCode(t *testing.T) {
	_, err := NewDecoder(0).Decode(blankFrame())
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestScanDeliversOnceAfterRelease(t *testing.T) {
	cam := &memCamera{frames: []image.Image{
		blankFrame(),
		qrFrame(t, "ABC|202406011430"),
		qrFrame(t, "second"),
	}}

	var results []string
	err := New(nil).Scan(context.Background(), cam, func(text string) {
		assert.True(t, cam.isReleased(), "camera must be released before the result is delivered")
		results = append(results, text)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC|202406011430"}, results)
	assert.Equal(t, 1, cam.opens)
	assert.Equal(t, 1, cam.closed)
}

func TestScanStreamEndsWithoutCode(t *testing.T) {
	cam := &memCamera{frames: []image.Image{blankFrame()}}
	called := false
	err := New(nil).Scan(context.Background(), cam, func(string) { called = true })
	assert.ErrorIs(t, err, ErrNoCode)
	assert.False(t, called)
	assert.True(t, cam.isReleased())
}

func TestScanCancelReleasesCamera(t *testing.T) {
	cam := &memCamera{frames: []image.Image{blankFrame()}, block: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- New(nil).Scan(ctx, cam, func(string) { t.Error("unexpected result") })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop after cancel")
	}
	assert.True(t, cam.isReleased())
}

func TestScanOpenFailure(t *testing.T) {
	denied := errors.New("permission denied")
	err := New(nil).Scan(context.Background(), &memCamera{openErr: denied}, nil)
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.ErrorIs(t, err, denied)
}

func TestExclusiveRejectsSecondOpen(t *testing.T) {
	cam := Exclusive(&memCamera{block: true})

	first, err := cam.Open(context.Background())
	require.NoError(t, err)

	_, err = cam.Open(context.Background())
	assert.ErrorIs(t, err, ErrCameraBusy)

	err = New(nil).Scan(context.Background(), cam, nil)
	assert.ErrorIs(t, err, ErrCameraBusy)
	assert.ErrorIs(t, err, ErrCameraUnavailable)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := cam.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestExclusiveReleasesOnOpenError(t *testing.T) {
	inner := &memCamera{openErr: errors.New("no device")}
	cam := Exclusive(inner)

	_, err := cam.Open(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCameraBusy)

	inner.openErr = nil
	s, err := cam.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestFileCamera(t *testing.T) {
	dir := t.TempDir()
	blank := writePNG(t, dir, "blank.png", blankFrame())
	code := writePNG(t, dir, "code.png", qrFrame(t, "12345 - 01/06/2024 14:30"))
	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))

	var got string
	err := New(nil).Scan(context.Background(), FileCamera{Paths: []string{junk, blank, code}}, func(text string) { got = text })
	require.NoError(t, err)
	assert.Equal(t, "12345 - 01/06/2024 14:30", got)

	err = New(nil).Scan(context.Background(), FileCamera{Paths: []string{blank}}, nil)
	assert.ErrorIs(t, err, ErrNoCode)

	err = New(nil).Scan(context.Background(), FileCamera{Paths: []string{filepath.Join(dir, "missing.png")}}, nil)
	assert.ErrorIs(t, err, ErrCameraUnavailable)

	err = New(nil).Scan(context.Background(), FileCamera{}, nil)
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}

func TestDecodeReader(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "code.png", qrFrame(t, "hello"))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := NewDecoder(0).DecodeReader(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = NewDecoder(0).DecodeReader(strings.NewReader("nope"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCode)
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h gray
// image with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := []byte("IHDR\x00\x00\x00\x00\x00\x00\x00\x00\x08\x00\x00\x00\x00")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)-4))
	buf.Write(ihdr)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr))
	return buf.Bytes()
}

func TestReadImagePixelBudget(t *testing.T) {
	_, err := ReadImage(bytes.NewReader(pngHeader(12000, 12000)), 4096*4096)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, qrFrame(t, "budget")))
	encoded := buf.Bytes()

	img, err := ReadImage(bytes.NewReader(encoded), 4096*4096)
	require.NoError(t, err)
	assert.Equal(t, qrFrame(t, "budget").Bounds(), img.Bounds())

	_, err = NewDecoder(10*10).DecodeReader(bytes.NewReader(encoded))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	got, err := NewDecoder(4096*4096).DecodeReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, "budget", got)
}
