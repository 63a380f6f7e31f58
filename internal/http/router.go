package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/service/auth"
	"github.com/splax/hookbin/internal/service/capture"
	"github.com/splax/hookbin/internal/service/webhook"
	"github.com/splax/hookbin/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	hooks    webhook.Service
	captures capture.Service
	upgrader websocket.Upgrader
	cfg      config.APIConfig
	dbHealth func(context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, hookSvc webhook.Service, captureSvc capture.Service, cfg config.APIConfig, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		hooks:    hookSvc,
		captures: captureSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		dbHealth: dbHealth,
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/auth/signup", r.audit(r.handleSignup))
	r.mux.HandleFunc("/auth/login", r.audit(r.handleLogin))
	r.mux.HandleFunc("/webhooks", r.audit(r.requireAuth(r.handleWebhooks)))
	r.mux.HandleFunc("/webhooks/", r.audit(r.requireAuth(r.handleWebhookSubroutes)))
	r.mux.HandleFunc("/ws/requests", r.audit(r.requireAuth(r.handleRequestsWS)))
	r.mux.HandleFunc("/listen/", r.audit(r.handleListen))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleWebhooks(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for webhook route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name       string `json:"name"`
			CustomPath string `json:"custom_path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		hook, err := r.hooks.Create(req.Context(), info.UserID, payload.Name, payload.CustomPath)
		if err != nil {
			if errors.Is(err, webhook.ErrSlugTaken) {
				writeError(w, http.StatusConflict, "this custom path is already taken")
				return
			}
			writeError(w, http.StatusInternalServerError, "could not create webhook")
			return
		}
		writeJSON(w, http.StatusCreated, webhookPayload(hook))
	case http.MethodGet:
		hooks, err := r.hooks.List(req.Context(), info.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		payload := make([]map[string]any, 0, len(hooks))
		for i := range hooks {
			payload = append(payload, webhookPayload(&hooks[i]))
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleWebhookSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/webhooks/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	webhookID := parts[0]
	switch {
	case len(parts) == 1:
		r.handleWebhookItem(w, req, webhookID)
	case len(parts) == 2 && parts[1] == "requests":
		r.handleWebhookRequests(w, req, webhookID)
	case len(parts) == 2 && parts[1] == "stream":
		r.handleWebhookStream(w, req, webhookID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleWebhookItem(w http.ResponseWriter, req *http.Request, webhookID string) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for webhook item", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		hook, err := r.hooks.Get(req.Context(), webhookID, info.UserID)
		if err != nil {
			r.writeWebhookError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, webhookPayload(hook))
	case http.MethodPut:
		var payload struct {
			Name       string `json:"name"`
			CustomPath string `json:"custom_path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		hook, err := r.hooks.Rename(req.Context(), webhookID, info.UserID, payload.Name, payload.CustomPath)
		if err != nil {
			r.writeWebhookError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, webhookPayload(hook))
	case http.MethodDelete:
		if err := r.hooks.Delete(req.Context(), webhookID, info.UserID); err != nil {
			r.writeWebhookError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleWebhookRequests(w http.ResponseWriter, req *http.Request, webhookID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for request history", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if _, err := r.hooks.Get(req.Context(), webhookID, info.UserID); err != nil {
		r.writeWebhookError(w, err)
		return
	}
	records, err := r.captures.List(req.Context(), webhookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]map[string]any, 0, len(records))
	for _, record := range records {
		payload = append(payload, capture.Payload(record))
	}
	writeJSON(w, http.StatusOK, payload)
}

// writeWebhookError maps registry errors onto responses. Missing webhooks
// and webhooks owned by someone else answer identically, so the endpoint
// does not leak which ids exist.
func (r *Router) writeWebhookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrSlugTaken):
		writeError(w, http.StatusConflict, "this custom path is already taken")
	case errors.Is(err, webhook.ErrNotFound), errors.Is(err, webhook.ErrNotOwner):
		r.notFound(w)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func webhookPayload(hook *domain.Webhook) map[string]any {
	var customPath any
	if hook.Slug != nil {
		customPath = *hook.Slug
	}
	return map[string]any{
		"id":          hook.ID,
		"name":        hook.Name,
		"custom_path": customPath,
		"created_at":  hook.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		} else if strings.HasPrefix(req.URL.Path, "/listen/") {
			actor = "sender"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
