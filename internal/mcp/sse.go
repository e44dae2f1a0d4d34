package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// MessagesPath is the endpoint announced to SSE clients.
const MessagesPath = "/messages/"

const (
	sseKeepAlive    = 15 * time.Second
	sseQueueSize    = 16
	sseSessionParam = "session_id"
)

type sseSession struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	messages chan []byte
}

// SSEHandler serves GET /sse. It opens a session, announces the messages
// endpoint in an "endpoint" event and then streams each response as a
// "message" event until the client disconnects.
func (s *Server) SSEHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		session := &sseSession{
			id:       uuid.NewString(),
			ctx:      ctx,
			cancel:   cancel,
			messages: make(chan []byte, sseQueueSize),
		}
		s.addSession(session)
		defer s.removeSession(session.id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		endpoint := MessagesPath + "?" + sseSessionParam + "=" + session.id
		if err := writeEvent(w, rc, "endpoint", []byte(endpoint)); err != nil {
			return
		}
		s.logger.DebugContext(ctx, "sse session opened", "session_id", session.id)

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.DebugContext(ctx, "sse session closed", "session_id", session.id)
				return
			case msg := <-session.messages:
				if err := writeEvent(w, rc, "message", msg); err != nil {
					s.logger.DebugContext(ctx, "sse write failed", "session_id", session.id, "error", err)
					return
				}
			case now := <-ticker.C:
				if _, err := fmt.Fprintf(w, ": ping - %s\n\n", now.UTC().Format(time.RFC3339)); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			}
		}
	})
}

// MessagesHandler serves POST /messages/?session_id=<id>. The message is
// accepted with 202 and its response is delivered on the session's stream.
func (s *Server) MessagesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.URL.Query().Get(sseSessionParam))
		if err != nil {
			http.Error(w, "Invalid session ID", http.StatusBadRequest)
			return
		}

		session, ok := s.session(id.String())
		if !ok {
			http.Error(w, "Could not find session", http.StatusNotFound)
			return
		}

		body, err := readMessage(w, r)
		if err != nil || !json.Valid(body) {
			http.Error(w, "Could not parse message", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("Accepted"))

		go s.deliver(session, body)
	})
}

func (s *Server) deliver(session *sseSession, body []byte) {
	resp, ok := s.Handle(session.ctx, body)
	if !ok {
		return
	}
	select {
	case session.messages <- resp:
	case <-session.ctx.Done():
	}
}

func (s *Server) addSession(session *sseSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.id] = session
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) session(id string) (*sseSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// CloseSessions ends every open SSE stream. Pass it to
// http.Server.RegisterOnShutdown so Shutdown does not wait on idle streams.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		session.cancel()
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
