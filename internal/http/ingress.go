package httpx

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/service/webhook"
)

// Fixed ingress bodies. Senders are arbitrary third parties, so the
// responses stay constant regardless of method or payload.
const (
	ingressAckBody      = "Webhook request received successfully"
	ingressNotFoundBody = "Webhook not found"
	ingressErrorBody    = "Internal Server Error"

	// unreadableBody is stored in place of a body that could not be read;
	// the sender still gets a definitive response.
	unreadableBody = "[Could not read body]"
)

// handleListen is the public capture entrypoint. It accepts every HTTP
// method, resolves the first path segment after /listen/ to a webhook
// (trailing segments are ignored), and records the request verbatim. An
// unresolved segment produces a 404 and no side effects.
func (r *Router) handleListen(w http.ResponseWriter, req *http.Request) {
	segment := strings.TrimPrefix(req.URL.Path, "/listen/")
	if i := strings.IndexByte(segment, '/'); i >= 0 {
		segment = segment[:i]
	}
	if segment == "" {
		writeText(w, http.StatusNotFound, ingressNotFoundBody)
		return
	}

	hook, err := r.hooks.Resolve(req.Context(), segment)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			writeText(w, http.StatusNotFound, ingressNotFoundBody)
			return
		}
		r.logger.Error("webhook resolution failed", "segment", segment, "error", err)
		writeText(w, http.StatusInternalServerError, ingressErrorBody)
		return
	}

	body := unreadableBody
	if raw, err := io.ReadAll(req.Body); err == nil {
		body = string(raw)
	}

	// The server promotes Host out of the header map; put it back so the
	// record is complete.
	headers := make(map[string][]string, len(req.Header)+1)
	for name, values := range req.Header {
		headers[name] = values
	}
	if req.Host != "" {
		headers["Host"] = []string{req.Host}
	}

	record := domain.CapturedRequest{
		WebhookID:   hook.ID,
		Method:      req.Method,
		Headers:     headers,
		Body:        body,
		QueryParams: map[string][]string(req.URL.Query()),
	}
	if _, err := r.captures.Record(req.Context(), record); err != nil {
		r.logger.Error("failed to store captured request", "webhook_id", hook.ID, "error", err)
		writeText(w, http.StatusInternalServerError, ingressErrorBody)
		return
	}
	writeText(w, http.StatusOK, ingressAckBody)
}
