package form

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuval/qrstamp/internal/payload"
	"github.com/yuval/qrstamp/internal/qrcode"
)

var june1 = civil.Date{Year: 2024, Month: time.June, Day: 1}

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) DataURL(text string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "data:" + text, nil
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteAll(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

func newController(r Renderer, f payload.Formatter, digitsOnly bool) *Controller {
	return NewController(Options{
		Formatter:   f,
		Renderer:    r,
		DigitsOnly:  digitsOnly,
		DefaultTime: civil.Time{Hour: 14, Minute: 30},
	})
}

func TestGenerateHuman(t *testing.T) {
	r := &fakeRenderer{}
	c := newController(r, payload.Human{}, true)
	c.SetCode("12345")
	c.SetDate(june1)

	n := c.Generate(context.Background())
	assert.Equal(t, NoticeGenerated, n)
	assert.False(t, n.IsError())

	s := c.Snapshot()
	assert.Equal(t, "12345 - 01/06/2024 14:30", s.Text)
	assert.Equal(t, "data:12345 - 01/06/2024 14:30", s.Image)
}

func TestGenerateMachineKeepsDelimiterWhenNotFiltering(t *testing.T) {
	c := newController(&fakeRenderer{}, payload.Machine{Delimiter: "|"}, false)
	c.SetCode("ABC|0000000000")
	c.SetDate(june1)

	assert.Equal(t, NoticeGenerated, c.Generate(context.Background()))
	assert.Equal(t, "ABC|202406011430", c.Snapshot().Text)
}

func TestGenerateMissingInput(t *testing.T) {
	r := &fakeRenderer{}
	c := newController(r, payload.Human{}, true)

	c.SetDate(june1)
	n := c.Generate(context.Background())
	assert.Equal(t, NoticeMissingCode, n)
	assert.True(t, n.IsError())

	c.SetCode("12345")
	c.SetDate(civil.Date{})
	assert.Equal(t, NoticeMissingDate, c.Generate(context.Background()))

	assert.Zero(t, r.calls, "no image is rendered for invalid input")
	assert.Empty(t, c.Snapshot().Text)
	assert.Empty(t, c.Snapshot().Image)
}

func TestGenerateFailureKeepsPriorResult(t *testing.T) {
	r := &fakeRenderer{}
	c := newController(r, payload.Human{}, true)
	c.SetCode("1")
	c.SetDate(june1)
	require.Equal(t, NoticeGenerated, c.Generate(context.Background()))
	before := c.Snapshot()

	r.err = errors.New("too long")
	c.SetCode("2")
	assert.Equal(t, NoticeEncodeFailed, c.Generate(context.Background()))

	after := c.Snapshot()
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Image, after.Image)
}

func TestGenerateWithRealEncoderTooLong(t *testing.T) {
	c := newController(qrcode.NewEncoder(qrcode.DefaultOptions()), payload.Human{}, false)
	c.SetCode(strings.Repeat("9", 8000))
	c.SetDate(june1)
	assert.Equal(t, NoticeEncodeFailed, c.Generate(context.Background()))
	assert.Empty(t, c.Snapshot().Image)
}

func TestGenerateWithoutRenderer(t *testing.T) {
	c := newController(nil, nil, true)
	c.SetCode("1")
	c.SetDate(june1)
	assert.Equal(t, NoticeEncodeFailed, c.Generate(context.Background()))
}

func TestSetCodeDigitsOnly(t *testing.T) {
	c := newController(nil, nil, true)
	c.SetCode("12a-34 5")
	assert.Equal(t, "12345", c.Snapshot().Code)

	c = newController(nil, nil, false)
	c.SetCode("ABC|1")
	assert.Equal(t, "ABC|1", c.Snapshot().Code)
}

func TestSetTime(t *testing.T) {
	c := newController(nil, nil, true)
	assert.Equal(t, civil.Time{Hour: 14, Minute: 30}, c.Snapshot().Time)

	require.NoError(t, c.SetTime("08:15"))
	assert.Equal(t, civil.Time{Hour: 8, Minute: 15}, c.Snapshot().Time)

	assert.ErrorIs(t, c.SetTime("8h15"), payload.ErrInvalidTime)
	assert.Equal(t, civil.Time{Hour: 8, Minute: 15}, c.Snapshot().Time)
}

func TestCopy(t *testing.T) {
	c := newController(&fakeRenderer{}, payload.Human{}, true)
	clip := &fakeClipboard{}

	assert.Equal(t, NoticeNothingToCopy, c.Copy(context.Background(), clip))

	c.SetCode("12345")
	c.SetDate(june1)
	require.Equal(t, NoticeGenerated, c.Generate(context.Background()))

	assert.Equal(t, NoticeCopied, c.Copy(context.Background(), clip))
	assert.Equal(t, "12345 - 01/06/2024 14:30", clip.text)

	broken := &fakeClipboard{err: errors.New("no display")}
	assert.Equal(t, NoticeCopyFailed, c.Copy(context.Background(), broken))
	assert.Equal(t, NoticeCopyFailed, c.Copy(context.Background(), nil))
	assert.Equal(t, "12345 - 01/06/2024 14:30", c.Snapshot().Text)
}

func TestApplyScan(t *testing.T) {
	c := newController(nil, nil, true)
	assert.Equal(t, NoticeScanned, c.ApplyScan("12345 - 01/06/2024 14:30"))
	assert.Equal(t, "12345 - 01/06/2024 14:30", c.Snapshot().Code, "scanned text is not digit filtered")

	c.SetCode("12a3")
	assert.Equal(t, "123", c.Snapshot().Code, "typed input still is")

	c = newController(nil, nil, false)
	c.ApplyScan("ABC|202406011430")
	assert.Equal(t, "ABC|202406011430", c.Snapshot().Code)
}
