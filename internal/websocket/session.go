package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yuval/qrstamp/internal/scanner"
)

const (
	MessageReady  = "ready"
	MessageResult = "result"
	MessageError  = "error"
	MessageClose  = "close"

	writeWait = 5 * time.Second
)

// Message is the JSON envelope exchanged over text frames.
type Message struct {
	Type        string `json:"type"`
	Session     string `json:"session,omitempty"`
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Session is one scanner view backed by a browser camera. Binary messages
// carry camera frames (PNG, JPEG or GIF); a {"type":"close"} text message or
// a disconnect closes the view.
type Session struct {
	ID string

	conn      *websocket.Conn
	maxPixels int
	frames    chan image.Image
	done      chan struct{}
	doneOne   sync.Once
	closeMu   sync.Once
	writeMu   sync.Mutex
}

// NewSession wraps an upgraded connection. Frames larger than maxFrameBytes
// terminate the connection; frames declaring more than maxFramePixels pixels
// are dropped undecoded.
func NewSession(conn *websocket.Conn, maxFrameBytes int64, maxFramePixels int) *Session {
	if maxFrameBytes > 0 {
		conn.SetReadLimit(maxFrameBytes)
	}
	return &Session{
		ID:        uuid.NewString(),
		conn:      conn,
		maxPixels: maxFramePixels,
		frames:    make(chan image.Image, 4),
		done:      make(chan struct{}),
	}
}

// Done is closed once the client has closed the view or gone away.
func (s *Session) Done() <-chan struct{} { return s.done }

// ReadLoop consumes client messages until the connection fails or the client
// closes the view. It must run in its own goroutine.
func (s *Session) ReadLoop() {
	defer s.finish()

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("Scan session read error", "session", s.ID, "error", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			img, err := scanner.ReadImage(bytes.NewReader(message), s.maxPixels)
			if errors.Is(err, scanner.ErrFrameTooLarge) {
				slog.Warn("Dropping oversized frame", "session", s.ID, "error", err)
				continue
			}
			if err != nil {
				slog.Debug("Dropping undecodable frame", "session", s.ID, "bytes", len(message), "error", err)
				continue
			}
			select {
			case s.frames <- img:
			case <-s.done:
				return
			}
		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				slog.Debug("Ignoring malformed message", "session", s.ID, "error", err)
				continue
			}
			if msg.Type == MessageClose {
				slog.Info("Scanner view closed by client", "session", s.ID)
				return
			}
		}
	}
}

// Open exposes the session as a camera stream.
func (s *Session) Open(ctx context.Context) (scanner.Stream, error) {
	select {
	case <-s.done:
		return nil, errors.New("scan session closed")
	default:
	}
	return &frameStream{session: s, released: make(chan struct{})}, nil
}

// Send writes msg as a JSON text frame.
func (s *Session) Send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Type, err)
	}
	return nil
}

// Close ends the session and the underlying connection.
func (s *Session) Close() error {
	var err error
	s.closeMu.Do(func() {
		s.finish()
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) finish() {
	s.doneOne.Do(func() { close(s.done) })
}

type frameStream struct {
	session  *Session
	released chan struct{}
	once     sync.Once
}

func (f *frameStream) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-f.released:
		return nil, io.ErrClosedPipe
	default:
	}

	select {
	case img := <-f.session.frames:
		return img, nil
	case <-f.session.done:
		// frames queued before the view closed are still analysed
		select {
		case img := <-f.session.frames:
			return img, nil
		default:
			return nil, io.EOF
		}
	case <-f.released:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *frameStream) Close() error {
	f.once.Do(func() { close(f.released) })
	return nil
}
