// Package mockserver serves the chat wire protocol locally: a websocket endpoint that
// answers every user message with typing, chunk and complete frames, plus a status endpoint.
// It backs the connection tests and the `serve` command.
package mockserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	ChatPath   = "/ws/chat"
	StatusPath = "/api/status"
)

type Option func(*Server)

func WithReplier(r Replier) Option {
	return func(s *Server) {
		if r != nil {
			s.replier = r
		}
	}
}

// WithChunkDelay spaces out chunk frames.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) {
		s.chunkDelay = d
	}
}

// WithStatus replaces the document served on the status endpoint.
func WithStatus(status map[string]any) Option {
	return func(s *Server) {
		s.status = status
	}
}

type Server struct {
	replier    Replier
	chunkDelay time.Duration
	status     map[string]any

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

func New(opts ...Option) *Server {
	s := &Server{
		replier:  EchoReplier{},
		status:   DefaultStatus(),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc(ChatPath, s.handleChat)
	s.mux.HandleFunc(StatusPath, s.handleStatus)
	return s
}

// DefaultStatus reports every agent as available.
func DefaultStatus() map[string]any {
	return map[string]any{
		"chat_agent": map[string]any{"enabled": true},
		"main_agent": map[string]any{
			"odoo_agent":     map[string]any{"enabled": true},
			"email_agent":    map[string]any{"authenticated": true},
			"whatsapp_agent": map[string]any{"enabled": true},
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Str("component", "mockserver").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		log.Info().Str("component", "mockserver").Str("addr", addr).Msg("serving chat endpoint")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	return eg.Wait()
}

type inboundMessage struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc := make(map[string]any, len(s.status)+1)
	for k, v := range s.status {
		doc[k] = v
	}
	doc["timestamp"] = timestamp(time.Now())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.Warn().Err(err).Str("component", "mockserver").Msg("status encode failed")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("component", "mockserver").Msg("websocket upgrade failed")
		return
	}
	wsLog := log.With().Str("component", "mockserver").Str("remote", conn.RemoteAddr().String()).Logger()
	wsLog.Info().Msg("ws connected")
	defer func() {
		_ = conn.Close()
		wsLog.Info().Msg("ws disconnected")
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsLog.Debug().Err(err).Msg("ws read loop end")
			return
		}
		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			if err := writeJSON(conn, map[string]any{"type": "error", "message": "invalid message"}); err != nil {
				return
			}
			continue
		}
		wsLog.Debug().Str("user_id", in.UserID).Int("length", len(in.Message)).Msg("message received")
		if err := s.respond(ctx, conn, in.Message); err != nil {
			wsLog.Debug().Err(err).Msg("ws write failed")
			return
		}
	}
}

func (s *Server) respond(ctx context.Context, conn *websocket.Conn, message string) error {
	if err := writeJSON(conn, map[string]any{"type": "typing", "status": "started"}); err != nil {
		return err
	}
	chunks, err := s.replier.Reply(ctx, message)
	if err != nil {
		return writeJSON(conn, map[string]any{"type": "error", "message": err.Error()})
	}
	for _, chunk := range chunks {
		if s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.chunkDelay):
			}
		}
		if err := writeJSON(conn, map[string]any{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}
	return writeJSON(conn, map[string]any{"type": "complete", "timestamp": timestamp(time.Now())})
}

func writeJSON(conn *websocket.Conn, v map[string]any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}
