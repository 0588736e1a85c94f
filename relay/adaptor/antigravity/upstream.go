package antigravity

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"
)

// Invoker issues one v1internal method call. The orchestrator depends on
// this interface only; tests substitute their own.
type Invoker interface {
	Call(ctx context.Context, method, bearer string, body any, query string) (*http.Response, error)
}

// HTTPInvoker calls the backend over HTTP, trying each base URL in order
// until one yields a usable response.
type HTTPInvoker struct {
	Client   *http.Client
	BaseURLs []string
}

func NewHTTPInvoker(client *http.Client, baseURLs []string) *HTTPInvoker {
	if len(baseURLs) == 0 {
		baseURLs = []string{BaseURLProd, BaseURLDaily}
	}
	return &HTTPInvoker{Client: client, BaseURLs: baseURLs}
}

// endpoint fallback mirrors the backend's own client: retry the next base
// on 429, 408, 404 and 5xx.
func shouldTryNextEndpoint(status int) bool {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status == http.StatusNotFound {
		return true
	}
	return status >= 500
}

// Call implements Invoker. The caller owns the response body.
func (inv *HTTPInvoker) Call(ctx context.Context, method, bearer string, body any, query string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal upstream request")
	}

	var lastErr error
	for i, base := range inv.BaseURLs {
		url := base + ":" + method
		if query != "" {
			url += "?" + query
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			lastErr = errors.Wrapf(err, "build request for %s", url)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("User-Agent", UserAgent)

		resp, err := inv.Client.Do(req)
		if err != nil {
			lastErr = errors.Wrapf(err, "call %s", url)
			continue
		}

		hasNext := i+1 < len(inv.BaseURLs)
		if hasNext && shouldTryNextEndpoint(resp.StatusCode) {
			_ = resp.Body.Close()
			lastErr = errors.Errorf("upstream %s returned HTTP %d", url, resp.StatusCode)
			continue
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.Errorf("no upstream endpoints configured")
	}
	return nil, lastErr
}
