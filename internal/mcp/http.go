package mcp

import (
	"errors"
	"io"
	"net/http"
)

// HTTPHandler serves the streamable HTTP transport. Each POST carries one
// JSON-RPC message and receives the response as application/json, or 202
// Accepted with no body for notifications.
func (s *Server) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readMessage(w, r)
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, "could not read message", status)
			return
		}

		resp, ok := s.Handle(r.Context(), body)
		if !ok {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(resp); err != nil {
			s.logger.WarnContext(r.Context(), "write mcp response", "error", err)
		}
	})
}

func readMessage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageSize)
	return io.ReadAll(r.Body)
}
