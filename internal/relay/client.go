// Package relay streams image frames to a remote scanner over a websocket and
// reports the decoded text.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/yuval/qrstamp/internal/websocket"
)

// ResultHandler is called once with the decoded text.
type ResultHandler func(text string)

// ErrorHandler is called when the server reports a failure.
type ErrorHandler func(title, description string)

// Client is a remote scanner session.
type Client struct {
	scanURL       string
	conn          *websocket.Conn
	sessionID     string
	resultHandler ResultHandler
	errorHandler  ErrorHandler
	resultOnce    sync.Once
	mu            sync.RWMutex
	ready         chan struct{}
	done          chan struct{}
}

// NewClient prepares a client for the server at baseURL, e.g.
// ws://localhost:8080. http(s) schemes are mapped to ws(s).
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/scan"

	return &Client{
		scanURL: u.String(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func (c *Client) URL() string { return c.scanURL }

// SetResultHandler sets the handler for the decoded text.
func (c *Client) SetResultHandler(handler ResultHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultHandler = handler
}

// SetErrorHandler sets the handler for server side failures.
func (c *Client) SetErrorHandler(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// Connect opens the scan session and waits for the server to accept it.
func (c *Client) Connect(timeout time.Duration) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.scanURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to scanner: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readMessages()

	select {
	case <-c.ready:
		slog.Info("Connected to scanner", "session", c.SessionID())
		return nil
	case <-c.done:
		return errors.New("scanner closed the session before it was ready")
	case <-time.After(timeout):
		return errors.New("timed out waiting for scanner session")
	}
}

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SendFrame sends one encoded image as a camera frame.
func (c *Client) SendFrame(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return fmt.Errorf("not connected to scanner")
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// Finish tells the server that no more frames will follow, which closes the
// scanner view once the queued frames are analysed.
func (c *Client) Finish() error {
	msg, err := json.Marshal(ws.Message{Type: ws.MessageClose})
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return fmt.Errorf("not connected to scanner")
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Done is closed when the server ends the session.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readMessages() {
	defer close(c.done)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	var readyOnce sync.Once
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("Scanner connection error", "error", err)
			}
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Error("Failed to unmarshal scanner message", "error", err)
			continue
		}

		c.mu.RLock()
		onResult, onError := c.resultHandler, c.errorHandler
		c.mu.RUnlock()

		switch msg.Type {
		case ws.MessageReady:
			c.mu.Lock()
			c.sessionID = msg.Session
			c.mu.Unlock()
			readyOnce.Do(func() { close(c.ready) })
		case ws.MessageResult:
			c.resultOnce.Do(func() {
				if onResult != nil {
					onResult(msg.Text)
				}
			})
		case ws.MessageError:
			if onError != nil {
				onError(msg.Title, msg.Description)
			}
		}
	}
}

// Close closes the scanner connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}

	return nil
}

// ErrNoResult is returned by Scan when the server closed the session without
// finding a code.
var ErrNoResult = errors.New("scanner found no qr code")

// Scan sends frames, closes the view and waits for the outcome. It replaces
// any handlers set before.
func (c *Client) Scan(frames [][]byte, timeout time.Duration) (string, error) {
	results := make(chan string, 1)
	failures := make(chan string, 1)
	c.SetResultHandler(func(text string) { results <- text })
	c.SetErrorHandler(func(title, description string) {
		select {
		case failures <- title + ": " + description:
		default:
		}
	})

	// the server may answer and hang up before every frame is sent
	var sendErr error
	for i, frame := range frames {
		if err := c.SendFrame(frame); err != nil {
			sendErr = fmt.Errorf("frame %d: %w", i, err)
			break
		}
	}
	if sendErr == nil {
		sendErr = c.Finish()
	}

	select {
	case text := <-results:
		return text, nil
	case msg := <-failures:
		return "", errors.New(msg)
	case <-c.done:
		select {
		case text := <-results:
			return text, nil
		case msg := <-failures:
			return "", errors.New(msg)
		default:
		}
		if sendErr != nil {
			return "", sendErr
		}
		return "", ErrNoResult
	case <-time.After(timeout):
		return "", errors.New("timed out waiting for scan result")
	}
}
