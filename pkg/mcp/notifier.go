package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/mabelstudio/internal/streaming"
)

const notificationMethod = "notifications/message"

// clientSender is the subset of MCPServer used to push notifications.
type clientSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// ProjectNotifier forwards hub events to the sessions watching each project.
type ProjectNotifier struct {
	sender   clientSender
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewProjectNotifier creates a notifier that pushes via MCP.
func NewProjectNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *ProjectNotifier {
	return &ProjectNotifier{sender: mcpServer, sessions: sessions, logger: logger}
}

// Run subscribes to every project event and blocks until ctx is done or the
// subscription closes.
func (n *ProjectNotifier) Run(ctx context.Context, hub streaming.Hub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.Filter{})
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			n.Notify(ev)
		}
	}
}

// Notify sends one event to every watching session.
// Best-effort: sessions that went away are dropped.
func (n *ProjectNotifier) Notify(ev streaming.Event) {
	if ev.ProjectID == "" {
		return
	}
	params := map[string]any{
		"level":  "info",
		"logger": "mabel",
		"data":   ev,
	}
	for _, sid := range n.sessions.SessionsFor(ev.ProjectID) {
		err := n.sender.SendNotificationToSpecificClient(sid, notificationMethod, params)
		switch {
		case errors.Is(err, server.ErrSessionNotFound):
			n.sessions.Remove(sid)
		case err != nil && n.logger != nil:
			n.logger.Debug("notification dropped", "session_id", sid, "project_id", ev.ProjectID, "error", err)
		}
	}
}
