package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/pkg/llm"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-5-haiku-20241022"
	anthropicMaxTokens    = 4096
)

type Anthropic struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

func NewAnthropic(apiKey string) *Anthropic {
	return NewAnthropicWithClient(apiKey, "", &http.Client{})
}

func NewAnthropicWithClient(apiKey, baseURL string, client HTTPClient) *Anthropic {
	if apiKey == "" {
		apiKey = config.Env().AnthropicKey
	}
	if baseURL == "" {
		baseURL = config.Env().AnthropicBaseURL
	}
	if baseURL == "" {
		baseURL = anthropicAPIURL
	} else {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1/messages") {
			baseURL += "/v1/messages"
		}
	}
	return &Anthropic{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

func (a *Anthropic) ID() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message *struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Generate(ctx context.Context, prompt *llm.Prompt, opts llm.Options) (*llm.Response, error) {
	model := opts.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = anthropicMaxTokens
	}

	var content []contentPart
	for _, img := range prompt.Images {
		src := &imageSource{Type: "base64", MediaType: img.MediaType, Data: img.Base64}
		if img.IsRemote() {
			src = &imageSource{Type: "url", URL: img.URL}
		}
		content = append(content, contentPart{Type: "image", Source: src})
	}
	content = append(content, contentPart{Type: "text", Text: prompt.User})

	body := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      prompt.System,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
		Stream:      true,
		Temperature: opts.Temperature,
	}

	resp, err := post(ctx, a.client, a.ID(), a.baseURL, body, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &llm.Response{Model: model}
	var text strings.Builder
	finished := false
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return false, nil
		}
		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				out.Model = ev.Message.Model
				out.Usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				text.WriteString(ev.Delta.Text)
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				finished = true
			}
			if ev.Usage != nil {
				out.Usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			finished = true
			return true, nil
		case "error":
			return true, streamError(ev)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, truncated(a.ID())
	}
	out.Content = text.String()
	return out, nil
}

// streamError maps mid-stream error events onto HTTP-equivalent statuses.
func streamError(ev anthropicEvent) error {
	if ev.Error == nil {
		return fmt.Errorf("anthropic: stream error")
	}
	status := http.StatusBadRequest
	switch ev.Error.Type {
	case "overloaded_error":
		status = 529
	case "rate_limit_error":
		status = http.StatusTooManyRequests
	case "api_error":
		status = http.StatusInternalServerError
	}
	return &llm.StatusError{Provider: "anthropic", Status: status, Body: ev.Error.Message}
}

var _ llm.Generator = (*Anthropic)(nil)
