package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rendis/mabelstudio/internal/streaming"
)

// handleSSEGlobal streams all events, optionally narrowed by ?types=a,b.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.Filter{Types: splitTypes(r)})
}

// handleSSEProject streams events for a single project.
func (s *Server) handleSSEProject(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.Filter{ProjectID: r.PathValue("id"), Types: splitTypes(r)})
}

func splitTypes(r *http.Request) []string {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// serveSSE is the common SSE implementation.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.Filter) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming_disabled", "Live events are not enabled.")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming not supported")
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "SSE subscribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "subscribe failed")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data)
			flusher.Flush()
		}
	}
}
