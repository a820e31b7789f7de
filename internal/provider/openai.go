package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/pkg/llm"
)

const (
	openaiAPIURL       = "https://api.openai.com/v1/chat/completions"
	openaiDefaultModel = "gpt-4o-mini"
)

type OpenAI struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

func NewOpenAI(apiKey string, baseURLOverride string) *OpenAI {
	return NewOpenAIWithClient(apiKey, baseURLOverride, &http.Client{})
}

func NewOpenAIWithClient(apiKey string, baseURLOverride string, client HTTPClient) *OpenAI {
	if apiKey == "" {
		apiKey = config.Env().OpenAIKey
	}
	baseURL := baseURLOverride
	if baseURL == "" {
		baseURL = config.Env().OpenAIBaseURL
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: normalizeOpenAIURL(baseURL),
		client:  client,
	}
}

// normalizeOpenAIURL accepts a bare host, a /v1 root, or the full endpoint.
func normalizeOpenAIURL(baseURL string) string {
	if baseURL == "" {
		return openaiAPIURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasSuffix(baseURL, "/chat/completions"):
		return baseURL
	case strings.HasSuffix(baseURL, "/v1"):
		return baseURL + "/chat/completions"
	default:
		return baseURL + "/v1/chat/completions"
	}
}

func (o *OpenAI) ID() string { return "openai" }

type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (o *OpenAI) Generate(ctx context.Context, prompt *llm.Prompt, opts llm.Options) (*llm.Response, error) {
	model := opts.Model
	if model == "" {
		model = openaiDefaultModel
	}

	msgs := make([]openaiMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openaiMessage{Role: "system", Content: prompt.System})
	}
	if len(prompt.Images) == 0 {
		msgs = append(msgs, openaiMessage{Role: "user", Content: prompt.User})
	} else {
		parts := []openaiContentPart{{Type: "text", Text: prompt.User}}
		for _, img := range prompt.Images {
			parts = append(parts, openaiContentPart{
				Type:     "image_url",
				ImageURL: &openaiImageURL{URL: img.DataURL(), Detail: "auto"},
			})
		}
		msgs = append(msgs, openaiMessage{Role: "user", Content: parts})
	}

	reqBody := map[string]any{
		"model":          model,
		"messages":       msgs,
		"stream":         true,
		"stream_options": map[string]bool{"include_usage": true},
	}
	if opts.MaxOutputTokens > 0 {
		// Newer o-series/GPT-5 models require max_completion_tokens
		if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "gpt-5") {
			reqBody["max_completion_tokens"] = opts.MaxOutputTokens
		} else {
			reqBody["max_tokens"] = opts.MaxOutputTokens
		}
	}
	if opts.Temperature > 0 {
		reqBody["temperature"] = opts.Temperature
	}

	resp, err := post(ctx, o.client, o.ID(), o.baseURL, reqBody, map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &llm.Response{Model: model}
	var text strings.Builder
	finished := false
	err = readSSE(resp.Body, func(data string) (bool, error) {
		if data == "[DONE]" {
			finished = true
			return true, nil
		}
		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		// usage arrives in a trailing chunk after finish_reason when include_usage is set
		if chunk.Usage != nil {
			out.Usage = llm.Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		for _, choice := range chunk.Choices {
			text.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finished = true
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, truncated(o.ID())
	}
	out.Content = text.String()
	return out, nil
}

var _ llm.Generator = (*OpenAI)(nil)
