package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/internal/retry"
	"github.com/joss/obsreport/pkg/llm"
)

func sseServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIGenerateAssemblesStream(t *testing.T) {
	sseData := `data: {"model":"gpt-4o-mini","choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"choices":[{"delta":{"content":" world"},"finish_reason":null}]}

data: {"choices":[{"delta":{},"finish_reason":"stop"}]}

data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3}}

data: [DONE]

`
	server := sseServer(t, http.StatusOK, sseData, func(r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Missing or wrong Authorization header")
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
	})

	o := NewOpenAIWithClient("test-key", server.URL, server.Client())
	resp, err := o.Generate(context.Background(), &llm.Prompt{User: "Hi"}, llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)
}

func TestOpenAIRequestShape(t *testing.T) {
	var captured map[string]any
	server := sseServer(t, http.StatusOK, "data: [DONE]\n\n", func(r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
	})

	o := NewOpenAIWithClient("k", server.URL+"/v1", server.Client())
	_, err := o.Generate(context.Background(), &llm.Prompt{
		System: "You are careful",
		User:   "Describe",
		Images: []llm.Image{{MediaType: "image/png", Base64: "AAAA"}, {URL: "https://x/y.jpg"}},
	}, llm.Options{Model: "gpt-4o", Temperature: 0.3, MaxOutputTokens: 500})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", captured["model"])
	assert.Equal(t, true, captured["stream"])
	assert.EqualValues(t, 500, captured["max_tokens"])
	assert.InDelta(t, 0.3, captured["temperature"], 1e-9)

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AAAA", img["url"])
	assert.Equal(t, "https://x/y.jpg", parts[2].(map[string]any)["image_url"].(map[string]any)["url"])
}

func TestOpenAIStatusErrorIsClassified(t *testing.T) {
	tests := []struct {
		status int
		want   retry.Class
	}{
		{http.StatusTooManyRequests, retry.Retryable},
		{http.StatusBadGateway, retry.Retryable},
		{http.StatusUnauthorized, retry.Fatal},
		{http.StatusBadRequest, retry.Fatal},
	}
	for _, tt := range tests {
		server := sseServer(t, tt.status, `{"error":{"message":"nope"}}`, nil)
		o := NewOpenAIWithClient("k", server.URL, server.Client())
		_, err := o.Generate(context.Background(), &llm.Prompt{User: "x"}, llm.Options{})
		require.Error(t, err)

		var se *llm.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, tt.status, se.Status)
		assert.Contains(t, se.Body, "nope")
		assert.Equal(t, tt.want, retry.Classify(err), "status %d", tt.status)
	}
}

func TestNormalizeOpenAIURL(t *testing.T) {
	assert.Equal(t, openaiAPIURL, normalizeOpenAIURL(""))
	assert.Equal(t, "http://h/v1/chat/completions", normalizeOpenAIURL("http://h/"))
	assert.Equal(t, "http://h/v1/chat/completions", normalizeOpenAIURL("http://h/v1"))
	assert.Equal(t, "http://h/api/chat/completions", normalizeOpenAIURL("http://h/api/chat/completions"))
}

func TestGoogleGenerate(t *testing.T) {
	sseData := `data: {"candidates":[{"content":{"parts":[{"text":"{\"sections\":"}]}}]}

data: {"candidates":[{"content":{"parts":[{"text":"[]}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2},"modelVersion":"gemini-1.5-flash-002"}

`
	var captured googleRequest
	server := sseServer(t, http.StatusOK, sseData, func(r *http.Request) {
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/gemini-1.5-flash:streamGenerateContent"))
		json.NewDecoder(r.Body).Decode(&captured)
	})

	g := NewGoogleWithClient("gk", server.URL, server.Client())
	resp, err := g.Generate(context.Background(), &llm.Prompt{
		System: "sys",
		User:   "look",
		Images: []llm.Image{{MediaType: "image/jpeg", Base64: "QQ=="}},
	}, llm.Options{MaxOutputTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, `{"sections":[]}`, resp.Content)
	assert.Equal(t, "gemini-1.5-flash-002", resp.Model)
	assert.Equal(t, llm.Usage{InputTokens: 7, OutputTokens: 2}, resp.Usage)

	require.NotNil(t, captured.SystemInstruction)
	require.Len(t, captured.Contents, 1)
	require.Len(t, captured.Contents[0].Parts, 2)
	assert.Equal(t, "QQ==", captured.Contents[0].Parts[1].InlineData.Data)
	assert.Equal(t, 100, captured.GenerationConfig.MaxOutputTokens)
}

func TestGoogleSafetyStop(t *testing.T) {
	server := sseServer(t, http.StatusOK, `data: {"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`+"\n\n", nil)
	g := NewGoogleWithClient("gk", server.URL, server.Client())
	_, err := g.Generate(context.Background(), &llm.Prompt{User: "x"}, llm.Options{})
	assert.ErrorContains(t, err, "SAFETY")
	assert.Equal(t, retry.Fatal, retry.Classify(err))
}

func TestAnthropicGenerate(t *testing.T) {
	sseData := `event: message_start
data: {"type":"message_start","message":{"model":"claude-3-5-haiku-20241022","usage":{"input_tokens":20}}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}

event: message_stop
data: {"type":"message_stop"}

`
	var captured anthropicRequest
	server := sseServer(t, http.StatusOK, sseData, func(r *http.Request) {
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "/v1/messages", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&captured)
	})

	a := NewAnthropicWithClient("ak", server.URL, server.Client())
	resp, err := a.Generate(context.Background(), &llm.Prompt{
		System: "sys",
		User:   "hello",
		Images: []llm.Image{{URL: "https://img/1.png"}},
	}, llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, llm.Usage{InputTokens: 20, OutputTokens: 4}, resp.Usage)

	assert.Equal(t, "sys", captured.System)
	assert.Equal(t, anthropicMaxTokens, captured.MaxTokens)
	require.Len(t, captured.Messages[0].Content, 2)
	assert.Equal(t, "url", captured.Messages[0].Content[0].Source.Type)
	assert.Equal(t, "text", captured.Messages[0].Content[1].Type)
}

func TestAnthropicOverloadedStreamIsRetryable(t *testing.T) {
	sseData := `event: error
data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}

`
	server := sseServer(t, http.StatusOK, sseData, nil)
	a := NewAnthropicWithClient("ak", server.URL, server.Client())
	_, err := a.Generate(context.Background(), &llm.Prompt{User: "x"}, llm.Options{})
	require.Error(t, err)
	assert.Equal(t, retry.Retryable, retry.Classify(err))
}

func TestGenerateHonoursCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOpenAIWithClient("k", server.URL, server.Client())
	_, err := o.Generate(ctx, &llm.Prompt{User: "x"}, llm.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type brokenReader struct{ data string }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.data == "" {
		return 0, errors.New("connection reset by peer")
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func TestReadSSETruncatedStreamIsRetryable(t *testing.T) {
	var got []string
	err := readSSE(&brokenReader{data: "data: one\n\n"}, func(data string) (bool, error) {
		got = append(got, data)
		return false, nil
	})
	require.Error(t, err)
	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, retry.Retryable, retry.Classify(err))
}

func TestPostUnencodableBodyIsFatal(t *testing.T) {
	_, err := post(context.Background(), http.DefaultClient, "openai", "http://127.0.0.1:1", map[string]any{"f": func() {}}, nil)
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.Classify(err))
}

func TestGenerateStreamWithoutEndMarkerIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		body string
		gen  func(url string, c HTTPClient) llm.Generator
	}{
		{
			name: "openai",
			body: `data: {"choices":[{"delta":{"content":"{\"sections\":[{\"ti"},"finish_reason":null}]}` + "\n\n",
			gen:  func(url string, c HTTPClient) llm.Generator { return NewOpenAIWithClient("k", url, c) },
		},
		{
			name: "anthropic",
			body: `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"{\"sec"}}` + "\n\n",
			gen:  func(url string, c HTTPClient) llm.Generator { return NewAnthropicWithClient("k", url, c) },
		},
		{
			name: "google",
			body: `data: {"candidates":[{"content":{"parts":[{"text":"{\"sec"}]}}]}` + "\n\n",
			gen:  func(url string, c HTTPClient) llm.Generator { return NewGoogleWithClient("k", url, c) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := sseServer(t, http.StatusOK, tt.body, nil)
			resp, err := tt.gen(server.URL, server.Client()).Generate(context.Background(), &llm.Prompt{User: "Hi"}, llm.Options{})
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Equal(t, retry.Retryable, retry.Classify(err))
		})
	}
}
