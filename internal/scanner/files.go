package scanner

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
)

// FileCamera replays image files as camera frames, in order, then ends the
// stream with io.EOF.
type FileCamera struct {
	Paths []string
}

func (c FileCamera) Open(ctx context.Context) (Stream, error) {
	if len(c.Paths) == 0 {
		return nil, fmt.Errorf("no image files given")
	}
	for _, p := range c.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
	}
	return &fileStream{paths: c.Paths}, nil
}

type fileStream struct {
	mu     sync.Mutex
	paths  []string
	next   int
	closed bool
}

func (s *fileStream) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	for s.next < len(s.paths) {
		path := s.paths[s.next]
		s.next++
		img, err := readImage(path)
		if err != nil {
			// unreadable files are skipped like blurry frames
			continue
		}
		return img, nil
	}
	return nil, io.EOF
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := ReadImage(f, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
