package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// wsUpgrader upgrades the extension bridge's HTTP connection. Origin
// checking is left open because the connection's own bearer JWT is the
// access-control boundary (spec §4.7), not the browser's Origin header.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /ws — the companion browser extension attaches here as the third
// web-search provider (spec §4.7). Unlike the rest of the surface, this
// route authenticates with the extension's own signed JWT instead of the
// API-key middleware, since the browser's WebSocket API cannot set an
// Authorization header on the handshake request.
func (h *Handler) handleExtensionAttach(w http.ResponseWriter, r *http.Request) {
	ext := h.engine.ExtensionProvider()
	if ext == nil {
		writeError(w, http.StatusNotFound, "extension provider not configured")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("extension websocket upgrade failed", "error", err)
		return
	}

	if err := ext.Attach(conn, token); err != nil {
		slog.Warn("extension attach rejected", "error", err)
		conn.Close()
		return
	}
	slog.Info("extension provider attached")
}
