// Package server exposes the lanboard HTTP and realtime surface.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/lanboard/lanboard/internal/board"
	"github.com/lanboard/lanboard/internal/config"
	"github.com/lanboard/lanboard/internal/hub"
	"github.com/lanboard/lanboard/internal/metrics"
	"github.com/lanboard/lanboard/internal/store"
	"github.com/lanboard/lanboard/internal/web"
	"github.com/lanboard/lanboard/pkg/proto"
)

const (
	// pongWait is how long a client may stay silent before its read fails.
	pongWait = 90 * time.Second
	// maxInboundBytes bounds a single inbound channel frame.
	maxInboundBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN-local app, any origin on the network may join
	},
}

// Server is the lanboard HTTP server.
type Server struct {
	cfg      *config.Config
	board    *board.Service
	store    *store.Store
	metrics  *metrics.Board
	mux      *http.ServeMux
	boardURL string
}

// New creates the server and registers its routes.
func New(cfg *config.Config, b *board.Service, st *store.Store, m *metrics.Board) *Server {
	s := &Server{
		cfg:      cfg,
		board:    b,
		store:    st,
		metrics:  m,
		mux:      http.NewServeMux(),
		boardURL: fmt.Sprintf("http://%s:%d/%s", LanIP(), cfg.Port, cfg.Passphrase),
	}
	s.setupRoutes()
	return s
}

// BoardURL returns the LAN address the board is reachable at.
func (s *Server) BoardURL() string {
	return s.boardURL
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.cfg.UploadDir))))
	s.mux.HandleFunc("GET /ws", s.handleWS)

	s.mux.HandleFunc("GET /{$}", s.handleHint)
	s.mux.HandleFunc("GET /{pass}", s.withPass(s.handlePage))
	s.mux.HandleFunc("GET /{pass}/qr.png", s.withPass(s.handleQR))
	s.mux.HandleFunc("POST /{pass}/upload", s.withPass(s.handleUpload))
	s.mux.HandleFunc("DELETE /{pass}/api/msg/{id}", s.withPass(s.handleDeleteMessage))
	s.mux.HandleFunc("POST /{pass}/api/clear", s.withPass(s.handleClear))
}

// Handler returns the full handler chain, gzip included.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.mux)
}

// withPass rejects requests whose path passphrase segment does not match.
func (s *Server) withPass(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.board.Authorize(r.PathValue("pass")); err != nil {
			s.jsonError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleHint(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Open http://%s:%d/<passphrase> to join the board\n", LanIP(), s.cfg.Port)
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	page, err := web.Assets.ReadFile("index.html")
	if err != nil {
		s.jsonError(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	html := strings.ReplaceAll(string(page), "__PASS__", s.cfg.Passphrase)
	html = strings.ReplaceAll(html, "__FULL_ADDR__", s.boardURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	png, err := qrcode.Encode(s.boardURL, qrcode.Medium, 256)
	if err != nil {
		s.jsonError(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// handleUpload streams a multipart upload into the attachment store without
// buffering the payload in memory. The "pass" form field must precede the
// file part and is re-checked against the passphrase.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.jsonError(w, "multipart form required", http.StatusBadRequest)
		return
	}

	formPass := ""
	var att *proto.Attachment
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.jsonError(w, "malformed multipart body", http.StatusBadRequest)
			return
		}

		switch part.FormName() {
		case "pass":
			v, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				s.jsonError(w, "malformed multipart body", http.StatusBadRequest)
				return
			}
			formPass = string(v)
		case "up":
			if s.board.Authorize(formPass) != nil {
				s.jsonError(w, "Forbidden", http.StatusForbidden)
				return
			}
			saved, err := s.store.Save(part.FileName(), part)
			if err != nil {
				log.Error().Err(err).Msg("upload save failed")
				s.jsonError(w, "upload failed", http.StatusInternalServerError)
				return
			}
			att = &saved
		}
		_ = part.Close()
	}

	if att == nil {
		s.jsonError(w, "file field missing", http.StatusBadRequest)
		return
	}

	s.metrics.UploadBytes.Add(float64(att.Size))
	log.Info().Str("url", att.URL).Int64("size", att.Size).Msg("file uploaded")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(att)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, files, err := s.board.DeleteMessage(id)
	if err != nil {
		s.jsonError(w, "journal write failed", http.StatusInternalServerError)
		return
	}

	resp := proto.DeleteResponse{OK: true, FilesDeleted: files}
	if deleted {
		resp.Deleted = 1
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	files, err := s.board.ClearBoard()
	if err != nil {
		s.jsonError(w, "journal write failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(proto.ClearResponse{OK: true, FilesDeleted: files})
}

// handleWS upgrades the realtime channel, bootstraps the client with the
// history snapshot and then admits inbound messages until disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	if s.board.Authorize(r.URL.Query().Get("pass")) != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "forbidden"),
			time.Now().Add(5*time.Second))
		_ = conn.Close()
		return
	}

	client := hub.NewWSClient(conn)
	if err := s.board.BootstrapClient(client); err != nil {
		log.Debug().Err(err).Msg("client bootstrap failed")
		client.Close()
		return
	}
	defer s.board.DisconnectClient(client)

	conn.SetReadLimit(maxInboundBytes)
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("client read error")
			}
			return
		}

		var in proto.InboundMessage
		if err := json.Unmarshal(data, &in); err != nil || in.Type != proto.EventMessage {
			continue
		}

		if s.board.Authorize(in.Pass) != nil {
			s.sendError(client, "Forbidden")
			continue
		}

		if _, err := s.board.AdmitMessage(in.Sender, in.Text, in.Attachments); err != nil {
			s.sendError(client, "failed to persist message")
		}
	}
}

// sendError reports a failure to the single requesting connection.
func (s *Server) sendError(c hub.Client, msg string) {
	data, err := json.Marshal(proto.ErrorEvent{Type: proto.EventError, Message: msg})
	if err != nil {
		return
	}
	_ = c.Send(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(proto.ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ListenAndServe starts the board server.
func (s *Server) ListenAndServe() error {
	log.Info().Str("listen", s.cfg.ListenAddr()).Str("board", s.boardURL).Msg("starting lanboard server")
	return http.ListenAndServe(s.cfg.ListenAddr(), s.Handler())
}
