package httpx

import (
	"net/http"
	"time"

	"github.com/splax/hookbin/internal/ws"
)

// handleRequestsWS upgrades the connection and subscribes the viewer to new
// captures for one webhook. Closing the socket ends the subscription, so a
// viewer switching webhooks opens a fresh connection with fresh state.
func (r *Router) handleRequestsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for requests websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	webhookID := req.URL.Query().Get("webhook_id")
	if webhookID == "" {
		writeError(w, http.StatusBadRequest, "webhook_id query parameter required")
		return
	}
	if _, err := r.hooks.Get(req.Context(), webhookID, info.UserID); err != nil {
		r.writeWebhookError(w, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.captures.Hub().Register(webhookID, client)
	go func() {
		defer func() {
			r.captures.Hub().Unregister(webhookID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handleWebhookStream serves the same subscription as Server-Sent Events
// for dashboards that cannot hold a websocket.
func (r *Router) handleWebhookStream(w http.ResponseWriter, req *http.Request, webhookID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for webhook stream", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if _, err := r.hooks.Get(req.Context(), webhookID, info.UserID); err != nil {
		r.writeWebhookError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.captures.Hub().Register(webhookID, client)
	defer func() {
		r.captures.Hub().Unregister(webhookID, client)
		client.Close()
	}()

	heartbeat := r.cfg.SSEHeartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
