package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agrelay/agrelay/common/logger"
	"github.com/agrelay/agrelay/relay/adaptor/antigravity"
	"github.com/agrelay/agrelay/relay/model"
	"github.com/agrelay/agrelay/relay/modelmap"
	"github.com/agrelay/agrelay/relay/relaymode"
	"github.com/agrelay/agrelay/relay/token"
)

type tokenCall struct {
	requestType string
	forceRotate bool
	sessionID   string
	model       string
}

type stubTokens struct {
	mu          sync.Mutex
	err         error
	poolSize    int
	calls       []tokenCall
	rateLimited []int
	successes   []string
}

func (s *stubTokens) GetToken(_ context.Context, requestType string, forceRotate bool, sessionID, mappedModel string) (token.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, tokenCall{requestType, forceRotate, sessionID, mappedModel})
	if s.err != nil {
		return token.Ticket{}, s.err
	}
	return token.Ticket{AccessToken: "tok", ProjectID: "proj-1", Email: "relay@example.com"}, nil
}

func (s *stubTokens) MarkRateLimited(_ string, status int, _ time.Duration, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited = append(s.rateLimited, status)
}

func (s *stubTokens) MarkSuccess(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, email)
}

func (s *stubTokens) Len() int {
	if s.poolSize == 0 {
		return 3
	}
	return s.poolSize
}

func (s *stubTokens) tokenCalls() []tokenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tokenCall(nil), s.calls...)
}

func (s *stubTokens) rateLimitedStatuses() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.rateLimited...)
}

type invokerCall struct {
	method string
	query  string
	env    *antigravity.Envelope
}

// scriptedInvoker replays canned responses in order; once the script runs
// out the last entry repeats.
type scriptedInvoker struct {
	mu     sync.Mutex
	script []func() *http.Response
	calls  []invokerCall
}

func (s *scriptedInvoker) Call(_ context.Context, method, _ string, body any, query string) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, _ := body.(*antigravity.Envelope)
	s.calls = append(s.calls, invokerCall{method: method, query: query, env: env})

	idx := len(s.calls) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx](), nil
}

func (s *scriptedInvoker) recordedCalls() []invokerCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]invokerCall(nil), s.calls...)
}

func upstreamResponse(status int, body string) func() *http.Response {
	return func() *http.Response {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}
}

var errTokens = errors.New("all 3 accounts are cooling down")

const helloSSE =`data: {"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP"}]}}` + "\n"

func newTestRelayer(tokens token.Manager, inv antigravity.Invoker) *Relayer {
	return &Relayer{
		Tokens:      tokens,
		Models:      modelmap.NewRouter(),
		Invoker:     inv,
		PeekTimeout: time.Second,
		MaxAttempts: 3,
	}
}

func serveText(t *testing.T, r *Relayer, mode int, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		gmw.SetLogger(c, logger.Logger)
		c.Next()
	})
	engine.POST(path, func(c *gin.Context) { r.RelayText(c, mode) })

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRelayTextNonStreamChat(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{}
	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gemini-3-pro-preview", w.Header().Get("X-Mapped-Model"))
	require.Equal(t, "relay@example.com", w.Header().Get("X-Account-Email"))

	var resp model.TextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "chat.completion", resp.Object)
	require.Equal(t, "gpt-4o", resp.Model)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "hello", resp.Choices[0].Message.StringContent())
	require.Equal(t, "stop", resp.Choices[0].FinishReason)

	calls := inv.recordedCalls()
	require.Len(t, calls, 1)
	require.Equal(t, antigravity.MethodStreamGenerateContent, calls[0].method)
	require.Equal(t, antigravity.QueryAltSSE, calls[0].query)
	require.Equal(t, antigravity.RequestTypeChat, calls[0].env.RequestType)
	require.Equal(t, "gemini-3-pro-preview", calls[0].env.Model)
	require.Equal(t, "proj-1", calls[0].env.Project)

	require.Equal(t, []string{"relay@example.com"}, tokens.successes)
}

func TestRelayTextStreamPassthrough(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(&stubTokens{}, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	require.Contains(t, body, "chat.completion.chunk")
	require.Contains(t, body, `"hello"`)
	require.Contains(t, body, "data: [DONE]")
}

func TestRelayTextLegacyCompletion(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(&stubTokens{}, inv)

	w := serveText(t, r, relaymode.Completions, "/v1/completions",
		`{"model":"gpt-3.5-turbo","prompt":"complete me"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.LegacyTextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "text_completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "hello", resp.Choices[0].Text)
	require.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestRelayTextResponsesNonStream(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(&stubTokens{}, inv)

	w := serveText(t, r, relaymode.ResponseAPI, "/v1/responses", `{"input":"say hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	// model omitted: default upstream model is used and surfaced
	require.Equal(t, "gemini-3-pro-preview", w.Header().Get("X-Mapped-Model"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "response", resp["object"])
	require.Equal(t, "completed", resp["status"])
	require.Contains(t, w.Body.String(), `"text":"hello"`)
}

func TestRelayTextCompletionsAutoDetectsCodex(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(&stubTokens{}, inv)

	// a Responses-API payload posted to /v1/completions answers in the
	// Responses dialect, not text_completion
	w := serveText(t, r, relaymode.Completions, "/v1/completions",
		`{"instructions":"You are terse","input":"say hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "response", resp["object"])

	// instructions became the system turn
	calls := inv.recordedCalls()
	require.Len(t, calls, 1)
	sys := calls[0].env.Request.SystemInstruction
	require.NotNil(t, sys)
	require.Equal(t, "You are terse", sys.Parts[0].Text)
}

func TestRelayTextRotatesOnRateLimit(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{}
	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusTooManyRequests, `{"error":{"message":"quota"}}`),
		upstreamResponse(http.StatusOK, helloSSE),
	}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)

	calls := tokens.tokenCalls()
	require.Len(t, calls, 2)
	require.False(t, calls[0].forceRotate)
	require.True(t, calls[1].forceRotate)

	require.Eventually(t, func() bool {
		statuses := tokens.rateLimitedStatuses()
		return len(statuses) == 1 && statuses[0] == http.StatusTooManyRequests
	}, time.Second, 10*time.Millisecond)
}

func TestRelayTextExhaustion(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{poolSize: 2}
	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusTooManyRequests, "quota exceeded"),
	}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "All accounts exhausted. Last error: HTTP 429")
	require.Equal(t, "relay@example.com", w.Header().Get("X-Account-Email"))

	// pool of 2 caps the budget at pool+1 = 3 attempts
	require.Len(t, inv.recordedCalls(), 3)
}

func TestRelayTextSignatureRecovery(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{}
	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusBadRequest, `{"error":{"message":"Invalid signature in thought block"}}`),
		upstreamResponse(http.StatusOK, helloSSE),
	}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)

	// signature recovery stays on the same account: no forced rotation,
	// and the sticky fingerprint is unchanged by the appended prompt
	calls := tokens.tokenCalls()
	require.Len(t, calls, 2)
	require.False(t, calls[1].forceRotate)
	require.Equal(t, calls[0].sessionID, calls[1].sessionID)

	invCalls := inv.recordedCalls()
	require.Len(t, invCalls, 2)
	contents := invCalls[1].env.Request.Contents
	require.NotEmpty(t, contents)
	lastUser := contents[len(contents)-1]
	require.Equal(t, "user", lastUser.Role)
	require.Contains(t, lastUser.Parts[0].Text, "[System Recovery]")
}

func TestRelayTextTerminalErrorPassesThrough(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusBadRequest, `{"error":{"message":"unknown field foo"}}`),
	}}
	r := newTestRelayer(&stubTokens{}, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unknown field foo")
	require.Len(t, inv.recordedCalls(), 1)
}

func TestRelayTextTokenError(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{err: errTokens}
	inv := &scriptedInvoker{script: []func() *http.Response{upstreamResponse(http.StatusOK, helloSSE)}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "Token error")
	require.Equal(t, "gemini-3-pro-preview", w.Header().Get("X-Mapped-Model"))
	require.Empty(t, inv.recordedCalls())
}

func TestRelayTextInlineErrorEventRotates(t *testing.T) {
	t.Parallel()

	// an HTTP-200 stream whose only payload is an error event must be
	// abandoned and the attempt retried on another account
	tokens := &stubTokens{}
	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusOK, `data: {"error":{"code":429,"message":"Resource has been exhausted"}}`+"\n"),
		upstreamResponse(http.StatusOK, helloSSE),
	}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hello")
	require.Len(t, inv.recordedCalls(), 2)

	calls := tokens.tokenCalls()
	require.Len(t, calls, 2)
	require.True(t, calls[1].forceRotate)
}

func TestRelayTextEmptyStreamRetriesThenExhausts(t *testing.T) {
	t.Parallel()

	tokens := &stubTokens{poolSize: 1}
	inv := &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusOK, ": heartbeat\n"),
	}}
	r := newTestRelayer(tokens, inv)

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions",
		`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "Empty response stream during peek")
	require.Len(t, inv.recordedCalls(), 2)
}

func TestRelayTextInvalidJSON(t *testing.T) {
	t.Parallel()

	r := newTestRelayer(&stubTokens{}, &scriptedInvoker{script: []func() *http.Response{
		upstreamResponse(http.StatusOK, helloSSE),
	}})

	w := serveText(t, r, relaymode.ChatCompletions, "/v1/chat/completions", `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request_error")
}
