package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yuval/qrstamp/internal/form"
	"github.com/yuval/qrstamp/internal/payload"
	"github.com/yuval/qrstamp/internal/qrcode"
	"github.com/yuval/qrstamp/internal/scanner"
	ws "github.com/yuval/qrstamp/internal/websocket"
)

type configResponse struct {
	Policy      string `json:"policy"`
	Delimiter   string `json:"delimiter"`
	DigitsOnly  bool   `json:"digitsOnly"`
	DefaultTime string `json:"defaultTime"`
	Size        int    `json:"size"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Policy:      s.payload.Policy,
		Delimiter:   s.payload.Delimiter,
		DigitsOnly:  s.payload.DigitsOnly,
		DefaultTime: fmt.Sprintf("%02d:%02d", s.defaultTime.Hour, s.defaultTime.Minute),
		Size:        s.encoder.Options().Size,
	})
}

type generateRequest struct {
	Code string `json:"code"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type generateResponse struct {
	Text   string      `json:"text,omitempty"`
	Image  string      `json:"image,omitempty"`
	Notice form.Notice `json:"notice"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		WriteBadRequest(w, r, "request body must be a JSON object")
		return
	}

	date, err := payload.ParseDate(req.Date)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	ctrl := s.newController()
	ctrl.SetCode(req.Code)
	ctrl.SetDate(date)
	if req.Time != "" {
		if err := ctrl.SetTime(req.Time); err != nil {
			WriteBadRequest(w, r, err.Error())
			return
		}
	}

	notice := ctrl.Generate(r.Context())
	if notice.IsError() {
		writeJSON(w, http.StatusUnprocessableEntity, generateResponse{Notice: notice})
		return
	}

	state := ctrl.Snapshot()
	slog.Info("QR code generated", "policy", s.payload.Policy, "bytes", len(state.Text))
	writeJSON(w, http.StatusOK, generateResponse{Text: state.Text, Image: state.Image, Notice: notice})
}

func (s *Server) handleQRPNG(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		WriteBadRequest(w, r, "query parameter text is required")
		return
	}

	b, err := s.encoder.PNG(text)
	if err != nil {
		if errors.Is(err, qrcode.ErrEncode) {
			WriteError(w, r, http.StatusUnprocessableEntity, form.NoticeEncodeFailed.Description)
			return
		}
		WriteInternal(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

type decodeResponse struct {
	Text string `json:"text"`
	// Code is the text as the form's code field would hold it.
	Code   string      `json:"code"`
	Notice form.Notice `json:"notice"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.scan.MaxFrameBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		WriteBadRequest(w, r, "multipart field image is required")
		return
	}
	defer file.Close()

	text, err := s.decoder.DecodeReader(file)
	switch {
	case errors.Is(err, scanner.ErrNoCode):
		WriteError(w, r, http.StatusUnprocessableEntity, "no QR code found in image")
		return
	case errors.Is(err, scanner.ErrFrameTooLarge):
		WriteError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d pixels", s.scan.MaxFramePixels))
		return
	case err != nil:
		WriteBadRequest(w, r, "image could not be read")
		return
	}

	ctrl := s.newController()
	notice := ctrl.ApplyScan(text)
	writeJSON(w, http.StatusOK, decodeResponse{Text: text, Code: ctrl.Snapshot().Code, Notice: notice})
}

// handleScan runs one scanner view over a websocket. The browser streams
// camera frames; the first decoded code is sent back and the session ends.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Scan upgrade failed", "error", err)
		return
	}

	session := ws.NewSession(conn, s.scan.MaxFrameBytes, s.scan.MaxFramePixels)
	s.hub.Register(session)
	defer func() {
		s.hub.Unregister(session)
		session.Close()
	}()

	go session.ReadLoop()

	if err := session.Send(ws.Message{Type: ws.MessageReady, Session: session.ID}); err != nil {
		slog.Error("Scan session handshake failed", "session", session.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.scanTimeout())
	defer cancel()

	err = s.scanner.Scan(ctx, scanner.Exclusive(session), func(text string) {
		if err := session.Send(ws.Message{Type: ws.MessageResult, Text: text}); err != nil {
			slog.Error("Failed to deliver scan result", "session", session.ID, "error", err)
		}
	})

	switch {
	case err == nil:
	case errors.Is(err, scanner.ErrNoCode):
		slog.Info("Scanner closed without a code", "session", session.ID)
	case errors.Is(err, context.DeadlineExceeded):
		s.sendNotice(session, form.Notice{Title: "Error", Description: "Scan timed out.", Variant: form.VariantDestructive})
	case errors.Is(err, scanner.ErrCameraUnavailable):
		s.sendNotice(session, form.NoticeCameraFailed)
	default:
		slog.Error("Scan failed", "session", session.ID, "error", err)
		s.sendNotice(session, form.NoticeCameraFailed)
	}
}

func (s *Server) sendNotice(session *ws.Session, n form.Notice) {
	err := session.Send(ws.Message{Type: ws.MessageError, Title: n.Title, Description: n.Description})
	if err != nil {
		slog.Debug("Failed to send notice", "session", session.ID, "error", err)
	}
}
