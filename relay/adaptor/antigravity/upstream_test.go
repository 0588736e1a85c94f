package antigravity

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPInvokerCall(t *testing.T) {
	t.Parallel()

	var gotAuth, gotAgent, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":{"candidates":[]}}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.Client(), []string{srv.URL + "/v1internal"})
	resp, err := inv.Call(context.Background(), MethodStreamGenerateContent, "tok-123", map[string]any{"x": 1}, QueryAltSSE)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, UserAgent, gotAgent)
	require.Equal(t, "/v1internal:streamGenerateContent?alt=sse", gotPath)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "candidates")
}

func TestHTTPInvokerFallsBackToNextEndpoint(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer healthy.Close()

	inv := NewHTTPInvoker(http.DefaultClient, []string{broken.URL + "/v1internal", healthy.URL + "/v1internal"})
	resp, err := inv.Call(context.Background(), MethodGenerateContent, "tok", map[string]any{}, "")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPInvokerTerminalStatusNotRetriedAcrossEndpoints(t *testing.T) {
	t.Parallel()

	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer first.Close()

	var secondHit bool
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer second.Close()

	inv := NewHTTPInvoker(http.DefaultClient, []string{first.URL + "/v1internal", second.URL + "/v1internal"})
	resp, err := inv.Call(context.Background(), MethodGenerateContent, "tok", map[string]any{}, "")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// client errors surface from the first endpoint directly
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, secondHit)
}
