package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xynenyx/relay/internal/cache"
	"github.com/xynenyx/relay/internal/prompts"
	"github.com/xynenyx/relay/internal/provider"
	"github.com/xynenyx/relay/internal/service"
	relaytest "github.com/xynenyx/relay/internal/testing"
	"github.com/xynenyx/relay/internal/usage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type serverFixture struct {
	server *Server
	mock   *relaytest.MockProvider
	ledger *relaytest.MockLedger
}

func newFixture(t *testing.T, opts ...func(*serverFixture)) *serverFixture {
	t.Helper()

	f := &serverFixture{
		mock:   &relaytest.MockProvider{ID: "openai", Default: "gpt-4o-mini", Healthy: true},
		ledger: &relaytest.MockLedger{},
	}
	for _, opt := range opts {
		opt(f)
	}

	router := provider.NewStaticRouter(testLogger(), f.mock)
	recorder := usage.NewRecorder(f.ledger, usage.DefaultRates(), testLogger())
	svc := service.New(router, cache.New(time.Hour, testLogger()), recorder, testLogger())

	f.server = New(svc, prompts.NewManager(testLogger()), f.ledger, 0, testLogger())
	return f
}

// closeNotifyRecorder adds the CloseNotifier method gin's c.Stream requires,
// which httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func doRequest(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(&closeNotifyRecorder{w, make(chan bool, 1)}, req)
	return w
}

func completionBody() map[string]any {
	return map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "Hi"},
		},
	}
}

func userHeader() map[string]string {
	return map[string]string{"X-User-ID": "user-1"}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHandleComplete_Success(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/complete", completionBody(), userHeader())

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}

	var result provider.Completion
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Content != "mock response" {
		t.Errorf("got content %q", result.Content)
	}
	if result.Provider != "openai" {
		t.Errorf("got provider %q", result.Provider)
	}
	if f.mock.CallCount != 1 {
		t.Errorf("expected 1 provider call, got %d", f.mock.CallCount)
	}
	if len(f.ledger.Records) != 1 {
		t.Errorf("expected 1 usage record, got %d", len(f.ledger.Records))
	}
}

func TestHandleComplete_MissingUserID(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/complete", completionBody(), nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "missing_user_id" {
		t.Errorf("got code %q, want missing_user_id", resp.Code)
	}
	if f.mock.CallCount != 0 {
		t.Error("provider must not be called without a user id")
	}
}

func TestHandleComplete_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty messages", map[string]any{"messages": []map[string]string{}}},
		{"missing messages", map[string]any{"model": "gpt-4o-mini"}},
		{"temperature out of range", map[string]any{
			"messages":    []map[string]string{{"role": "user", "content": "Hi"}},
			"temperature": 3.5,
		}},
		{"negative max tokens", map[string]any{
			"messages":   []map[string]string{{"role": "user", "content": "Hi"}},
			"max_tokens": -1,
		}},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, f.server, http.MethodPost, "/complete", tt.body, userHeader())
			if w.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleComplete_UnknownProvider(t *testing.T) {
	f := newFixture(t)

	body := completionBody()
	body["provider"] = "nonexistent"

	w := doRequest(t, f.server, http.MethodPost, "/complete", body, userHeader())

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != "provider_not_found" {
		t.Errorf("got code %q, want provider_not_found", resp.Code)
	}
}

func TestHandleComplete_DefaultTemperature(t *testing.T) {
	f := newFixture(t)

	doRequest(t, f.server, http.MethodPost, "/complete", completionBody(), userHeader())

	if f.mock.LastRequest.Temperature != 0.7 {
		t.Errorf("got temperature %v, want 0.7", f.mock.LastRequest.Temperature)
	}
}

func TestHandleCompleteStream_SSEFraming(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/complete/stream", completionBody(), userHeader())

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("got content type %q", ct)
	}

	raw := w.Body.String()
	if !strings.HasSuffix(raw, "\n\n") {
		t.Error("stream must end with a blank line after the last event")
	}

	var chunks []provider.StreamChunk
	for _, event := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		payload, ok := strings.CutPrefix(event, "data: ")
		if !ok {
			t.Fatalf("event missing data prefix: %q", event)
		}
		var chunk provider.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", payload, err)
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 events, got %d", len(chunks))
	}
	if chunks[0].Type != provider.ChunkToken || chunks[1].Type != provider.ChunkToken {
		t.Error("expected token chunks first")
	}
	if chunks[2].Type != provider.ChunkEnd {
		t.Errorf("expected terminal end chunk, got %s", chunks[2].Type)
	}
}

func TestHandleCompleteStream_MissingUserID(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/complete/stream", completionBody(), nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestHandleEmbed_Success(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/embeddings",
		map[string]any{"text": "some text"}, userHeader())

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}

	var result provider.Embedding
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Vector) == 0 {
		t.Error("expected a non-empty vector")
	}
}

func TestHandleEmbed_MissingText(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodPost, "/embeddings", map[string]any{}, userHeader())

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestHandleListProviders(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/providers", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var resp ProviderListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(resp.Providers))
	}
	if resp.Providers[0].ID != "openai" || !resp.Providers[0].Healthy {
		t.Errorf("unexpected provider info: %+v", resp.Providers[0])
	}
}

func TestHandleGetProvider_NotFound(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/providers/nonexistent", nil, nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestHandleListPrompts(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/prompts", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var resp PromptListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Prompts) == 0 {
		t.Error("expected at least one prompt")
	}
}

func TestHandleGetPrompt(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/prompts/rag_qa", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var resp PromptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name != "rag_qa" || resp.Template == "" {
		t.Errorf("unexpected prompt response: %+v", resp)
	}

	w = doRequest(t, f.server, http.MethodGet, "/prompts/nonexistent", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/health", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestHandleReady(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/ready", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleReady_LedgerDown(t *testing.T) {
	failing := &relaytest.FailingLedger{Message: "db down"}

	f := newFixture(t)
	// Readiness probes the ledger handed to the server, not the
	// recorder's, so swap it at the server level.
	f.server.ledger = failing

	w := doRequest(t, f.server, http.MethodGet, "/ready", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", w.Code)
	}

	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "not ready" {
		t.Errorf("got status %q", resp.Status)
	}
	if !strings.Contains(resp.Checks["ledger"], "db down") {
		t.Errorf("ledger check missing failure detail: %+v", resp.Checks)
	}
}

func TestHandleMetrics(t *testing.T) {
	f := newFixture(t)

	// Low temperature so the completion is cache-eligible.
	body := completionBody()
	body["temperature"] = 0.1
	doRequest(t, f.server, http.MethodPost, "/complete", body, userHeader())

	w := doRequest(t, f.server, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var resp MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Usage.RequestCount != 1 {
		t.Errorf("expected 1 recorded request, got %d", resp.Usage.RequestCount)
	}
	if resp.CacheSize != 1 {
		t.Errorf("expected 1 cached completion, got %d", resp.CacheSize)
	}
}

func TestHandleClearCache(t *testing.T) {
	f := newFixture(t)

	body := completionBody()
	body["temperature"] = 0.1
	doRequest(t, f.server, http.MethodPost, "/complete", body, userHeader())

	w := doRequest(t, f.server, http.MethodDelete, "/cache", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	w = doRequest(t, f.server, http.MethodGet, "/metrics", nil, nil)
	var resp MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CacheSize != 0 {
		t.Errorf("expected empty cache after clear, got %d", resp.CacheSize)
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)

	// httptest requests default to host example.com; the origin must be a
	// different host or the cors middleware treats it as same-origin.
	w := doRequest(t, f.server, http.MethodGet, "/health", nil,
		map[string]string{"Origin": "http://client.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("got Access-Control-Allow-Origin %q, want *", got)
	}

	// Preflight for the completion endpoint.
	w = doRequest(t, f.server, http.MethodOptions, "/complete", nil, map[string]string{
		"Origin":                        "http://client.example",
		"Access-Control-Request-Method": "POST",
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("got preflight status %d, want 204", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("preflight missing POST in allowed methods: %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	w := doRequest(t, f.server, http.MethodGet, "/health", nil, nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}

	w = doRequest(t, f.server, http.MethodGet, "/health", nil,
		map[string]string{"X-Request-ID": "req-abc"})
	if got := w.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("expected caller-supplied request id to round-trip, got %q", got)
	}
}
