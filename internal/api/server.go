// Package api exposes the generator and scanner over HTTP.
package api

import (
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/yuval/qrstamp/internal/config"
	"github.com/yuval/qrstamp/internal/form"
	"github.com/yuval/qrstamp/internal/payload"
	"github.com/yuval/qrstamp/internal/qrcode"
	"github.com/yuval/qrstamp/internal/scanner"
	ws "github.com/yuval/qrstamp/internal/websocket"
	"github.com/yuval/qrstamp/web"
)

// Server holds the handlers' dependencies.
type Server struct {
	payload     config.PayloadConfig
	scan        config.ScanConfig
	formatter   payload.Formatter
	defaultTime civil.Time
	encoder     *qrcode.Encoder
	decoder     *scanner.Decoder
	scanner     *scanner.Scanner
	hub         *ws.Hub
	limiter     *RateLimiter
	upgrader    websocket.Upgrader
}

func NewServer(cfg *config.Config, encoder *qrcode.Encoder, hub *ws.Hub, limiter *RateLimiter) (*Server, error) {
	formatter, err := payload.ForPolicy(cfg.Payload.Policy, cfg.Payload.Delimiter)
	if err != nil {
		return nil, err
	}
	defaultTime, err := payload.ParseClock(cfg.Payload.DefaultTime)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TIME: %w", err)
	}

	decoder := scanner.NewDecoder(cfg.Scan.MaxFramePixels)
	return &Server{
		payload:     cfg.Payload,
		scan:        cfg.Scan,
		formatter:   formatter,
		defaultTime: defaultTime,
		encoder:     encoder,
		decoder:     decoder,
		scanner:     scanner.New(decoder),
		hub:         hub,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
	}, nil
}

// Router wires every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/qr.png", s.handleQRPNG).Methods(http.MethodGet)
	api.HandleFunc("/decode", s.handleDecode).Methods(http.MethodPost)

	var scan http.Handler = http.HandlerFunc(s.handleScan)
	if s.limiter != nil {
		scan = s.limiter.Middleware(scan)
	}
	r.Handle("/ws/scan", scan)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, web.Static, "static/index.html")
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) newController() *form.Controller {
	return form.NewController(form.Options{
		Formatter:   s.formatter,
		Renderer:    s.encoder,
		DigitsOnly:  s.payload.DigitsOnly,
		DefaultTime: s.defaultTime,
	})
}

func (s *Server) scanTimeout() time.Duration {
	if s.scan.Timeout <= 0 {
		return 2 * time.Minute
	}
	return s.scan.Timeout
}

// sameOrigin accepts browsers on the serving host and non-browser clients
// that send no Origin header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
