package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joss/obsreport/internal/retry"
	"github.com/joss/obsreport/pkg/llm"
)

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)

// post sends a JSON body and returns the open response. Non-2xx answers
// become *llm.StatusError with the body attached.
func post(ctx context.Context, client HTTPClient, provider, url string, body any, headers map[string]string) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, retry.MarkFatal(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, retry.MarkFatal(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &llm.StatusError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// readSSE feeds each "data: " payload to fn until fn returns done or the
// stream ends.
func readSSE(body io.Reader, fn func(data string) (done bool, err error)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		done, err := fn(line[6:])
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	// a broken connection is retried
	if err := scanner.Err(); err != nil {
		return retry.MarkRetryable(fmt.Errorf("read stream: %w", err))
	}
	return nil
}

// truncated reports a stream that closed before the provider's end marker.
func truncated(provider string) error {
	return retry.MarkRetryable(fmt.Errorf("%s: stream ended early: %w", provider, io.ErrUnexpectedEOF))
}
