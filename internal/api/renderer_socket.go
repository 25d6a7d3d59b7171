package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/listenupapp/listenup-reader/internal/http/response"
	"github.com/listenupapp/listenup-reader/internal/renderer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The renderer webview connects from an app-local origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleRendererSocket upgrades the connection and attaches it to the session
// as its renderer. One renderer per session; a newcomer replaces the previous
// connection.
func (s *Server) handleRendererSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.manager.Get(id)
	if !ok {
		response.NotFound(w, "no session "+id, s.logger)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("renderer upgrade failed", "session_id", id, "error", err)
		return
	}

	bridge := renderer.NewBridge(conn, sess.RendererSink(), s.logger)
	if err := sess.AttachRenderer(r.Context(), bridge); err != nil {
		s.logger.Warn("renderer attach failed", "session_id", id, "error", err)
		bridge.Close()
		return
	}

	go func() {
		<-bridge.Done()
		if err := sess.DetachRenderer(context.Background(), bridge); err != nil {
			s.logger.Debug("renderer detach failed", "session_id", id, "error", err)
		}
	}()
}
