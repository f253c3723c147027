package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// postJSON sends body to url and returns the status code and the response
// body. Transport failures are mapped to provider errors here; HTTP status
// handling is left to the caller. The response body is always closed.
func (b *backend) postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, backendError(b.display, fmt.Errorf("creating HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if cerr := b.contextError(ctx); cerr != nil {
			return 0, nil, cerr
		}
		return 0, nil, unavailableError(b.display, fmt.Errorf("sending HTTP request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if cerr := b.contextError(ctx); cerr != nil {
			return 0, nil, cerr
		}
		return 0, nil, unavailableError(b.display, fmt.Errorf("reading response body: %w", err))
	}

	return httpResp.StatusCode, respBody, nil
}
