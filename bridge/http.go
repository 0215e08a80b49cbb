package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlexStarov/escpos-print-bridge/config"
	"github.com/AlexStarov/escpos-print-bridge/log"
)

// Server exposes a Service over HTTP and WebSocket.
type Server struct {
	Service      *Service
	AllowOrigin  string
	MaxBodyBytes int64
	Logger       *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(svc *Service, cfg config.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{
		Service:      svc,
		AllowOrigin:  cfg.CORSAllowOrigin,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

type response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Printer string `json:"printer,omitempty"`
}

// Handler returns the routed handler with CORS and access logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /print", s.handlePrint)
	mux.HandleFunc("POST /print-image", s.handlePrint)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.accessLog(s.cors(mux))
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Service.Print(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{OK: true, Printer: s.Service.Dialer.Addr()})
}

var errBodyTooLarge = errors.New("request body too large")

// decodeRequest reads a JSON body, or a text/plain body on /print.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	if s.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return req, &ValidationError{Field: "Content-Type", Reason: err.Error()}
		}
		mediaType = mt
	}

	switch {
	case mediaType == "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, bodyError(err)
		}
		return req, nil
	case mediaType == "text/plain" && r.URL.Path == "/print":
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return req, bodyError(err)
		}
		if len(b) == 0 {
			return req, &ValidationError{Reason: "empty request body"}
		}
		return TextRequest(string(b)), nil
	}
	return req, &ValidationError{Field: "Content-Type", Reason: "unsupported media type " + mediaType}
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errBodyTooLarge
	}
	if errors.Is(err, io.EOF) {
		return &ValidationError{Reason: "empty request body"}
	}
	return &ValidationError{Reason: "invalid JSON: " + err.Error()}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, errBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, response{OK: false, Error: clientMessage(err)})
}

// clientMessage hides the cause of internal errors.
func clientMessage(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// -------------------- middleware --------------------

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AllowOrigin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", s.AllowOrigin)
			if s.AllowOrigin != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.AllowOrigin == "*" || strings.EqualFold(origin, s.AllowOrigin)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
