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
	googleAPIURL       = "https://generativelanguage.googleapis.com/v1beta/models"
	googleDefaultModel = "gemini-1.5-flash"
)

type Google struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

func NewGoogle(apiKey string) *Google {
	return NewGoogleWithClient(apiKey, "", &http.Client{})
}

func NewGoogleWithClient(apiKey, baseURL string, client HTTPClient) *Google {
	if apiKey == "" {
		apiKey = config.Env().GoogleKey
	}
	if baseURL == "" {
		baseURL = googleAPIURL
	}
	return &Google{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (g *Google) ID() string { return "google" }

type googleRequest struct {
	Contents          []googleContent  `json:"contents"`
	SystemInstruction *googleContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenConfig `json:"generationConfig,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *googleBlob     `json:"inlineData,omitempty"`
	FileData   *googleFileData `json:"fileData,omitempty"`
}

type googleBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type googleFileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type googleGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type googleStreamResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
	ModelVersion string `json:"modelVersion"`
}

func (g *Google) Generate(ctx context.Context, prompt *llm.Prompt, opts llm.Options) (*llm.Response, error) {
	model := opts.Model
	if model == "" {
		model = googleDefaultModel
	}

	parts := []googlePart{{Text: prompt.User}}
	for _, img := range prompt.Images {
		if img.IsRemote() {
			parts = append(parts, googlePart{FileData: &googleFileData{MimeType: img.MediaType, FileURI: img.URL}})
		} else {
			parts = append(parts, googlePart{InlineData: &googleBlob{MimeType: img.MediaType, Data: img.Base64}})
		}
	}

	body := googleRequest{
		Contents: []googleContent{{Role: "user", Parts: parts}},
		GenerationConfig: &googleGenConfig{
			MaxOutputTokens: opts.MaxOutputTokens,
			Temperature:     opts.Temperature,
		},
	}
	if prompt.System != "" {
		body.SystemInstruction = &googleContent{Role: "user", Parts: []googlePart{{Text: prompt.System}}}
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", g.baseURL, model)
	resp, err := post(ctx, g.client, g.ID(), url, body, map[string]string{
		"x-goog-api-key": g.apiKey,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &llm.Response{Model: model}
	var text strings.Builder
	finished := false
	err = readSSE(resp.Body, func(data string) (bool, error) {
		var chunk googleStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if chunk.UsageMetadata != nil {
			out.Usage = llm.Usage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
			}
		}
		if chunk.ModelVersion != "" {
			out.Model = chunk.ModelVersion
		}
		for _, c := range chunk.Candidates {
			for _, p := range c.Content.Parts {
				text.WriteString(p.Text)
			}
			switch c.FinishReason {
			case "":
			case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
				return true, fmt.Errorf("google: generation stopped: %s", c.FinishReason)
			default:
				finished = true
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, truncated(g.ID())
	}
	out.Content = text.String()
	return out, nil
}

var _ llm.Generator = (*Google)(nil)
