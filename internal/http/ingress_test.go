package httpx

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/splax/hookbin/internal/domain"
)

func seedWebhook(t *testing.T, repo *memoryRepository, id, userID, slugValue string) domain.Webhook {
	t.Helper()
	hook := domain.Webhook{ID: id, UserID: userID, Name: "seeded", CreatedAt: time.Now().UTC()}
	if slugValue != "" {
		hook.Slug = &slugValue
	}
	if err := repo.CreateWebhook(context.Background(), &hook); err != nil {
		t.Fatalf("seed webhook: %v", err)
	}
	return hook
}

func TestListenCapturesRequest(t *testing.T) {
	router, repo := newTestRouter(t)
	seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "my-coolpath")

	req := httptest.NewRequest("POST", "/listen/my-coolpath", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Test", "first")
	req.Header.Add("X-Test", "second")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Webhook request received successfully" {
		t.Fatalf("unexpected acknowledgement body: %q", rec.Body.String())
	}
	if len(repo.captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(repo.captures))
	}
	record := repo.captures[0]
	if record.Method != "POST" || record.Body != `{"a":1}` {
		t.Fatalf("unexpected capture: %+v", record)
	}
	if len(record.QueryParams) != 0 {
		t.Fatalf("expected empty query params, got %v", record.QueryParams)
	}
	if values := record.Headers["X-Test"]; len(values) != 2 || values[0] != "first" || values[1] != "second" {
		t.Fatalf("multi-valued header lost: %v", record.Headers["X-Test"])
	}
	if values := record.Headers["Host"]; len(values) != 1 || values[0] != "example.com" {
		t.Fatalf("host header lost: %v", record.Headers)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestListenUnreadableBody(t *testing.T) {
	router, repo := newTestRouter(t)
	seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "my-coolpath")

	req := httptest.NewRequest("POST", "/listen/my-coolpath", brokenReader{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 despite unreadable body, got %d", rec.Code)
	}
	if rec.Body.String() != "Webhook request received successfully" {
		t.Fatalf("unexpected acknowledgement body: %q", rec.Body.String())
	}
	if len(repo.captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(repo.captures))
	}
	if repo.captures[0].Body != "[Could not read body]" {
		t.Fatalf("sentinel not stored: %q", repo.captures[0].Body)
	}
}

func TestListenResolvesByPrimaryID(t *testing.T) {
	router, repo := newTestRouter(t)
	hook := seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "")

	req := httptest.NewRequest("GET", "/listen/"+hook.ID+"?probe=1&probe=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(repo.captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(repo.captures))
	}
	record := repo.captures[0]
	if record.WebhookID != hook.ID {
		t.Fatalf("capture bound to wrong webhook: %s", record.WebhookID)
	}
	if values := record.QueryParams["probe"]; len(values) != 2 {
		t.Fatalf("query params lost: %v", record.QueryParams)
	}
}

func TestListenTrailingSegmentsIgnored(t *testing.T) {
	router, repo := newTestRouter(t)
	seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "my-coolpath")

	req := httptest.NewRequest("PUT", "/listen/my-coolpath/extra/segments", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(repo.captures) != 1 || repo.captures[0].Method != "PUT" {
		t.Fatalf("unexpected captures: %+v", repo.captures)
	}
}

func TestListenUnknownIdentifier(t *testing.T) {
	router, repo := newTestRouter(t)

	req := httptest.NewRequest("GET", "/listen/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.String() != "Webhook not found" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if len(repo.captures) != 0 {
		t.Fatalf("lookup miss produced side effects: %+v", repo.captures)
	}
}

func TestListenAcceptsEveryMethod(t *testing.T) {
	router, repo := newTestRouter(t)
	seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "any-method")

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"} {
		req := httptest.NewRequest(method, "/listen/any-method", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Fatalf("method %s: expected 200, got %d", method, rec.Code)
		}
	}
	if len(repo.captures) != 7 {
		t.Fatalf("expected 7 captures, got %d", len(repo.captures))
	}
}

func TestListenPersistenceFailure(t *testing.T) {
	router, repo := newTestRouter(t)
	seedWebhook(t, repo, "6f1de5a2-4b9d-4a86-9a47-62c3f5b0f5d1", "user-1", "my-coolpath")
	repo.failInsert = errStubFailure

	req := httptest.NewRequest("POST", "/listen/my-coolpath", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Body.String() != "Internal Server Error" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}
