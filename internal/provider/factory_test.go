package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/pkg/llm"
)

func TestFactory_Create(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		name    string
		pt      ProviderType
		opts    []ConfigOption
		wantID  string
		wantErr bool
	}{
		{"anthropic", ProviderAnthropic, []ConfigOption{WithAPIKey("test-key")}, "anthropic", false},
		{"openai", ProviderOpenAI, []ConfigOption{WithAPIKey("test-key")}, "openai", false},
		{"google", ProviderGoogle, []ConfigOption{WithAPIKey("test-key")}, "google", false},
		{"mock", ProviderMock, nil, "mock", false},
		{"unknown", ProviderType("unknown"), nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := f.Create(tt.pt, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && g.ID() != tt.wantID {
				t.Errorf("Create().ID() = %v, want %v", g.ID(), tt.wantID)
			}
		})
	}
}

func TestFactory_CreateByID(t *testing.T) {
	f := NewFactory()
	for id, want := range map[string]string{
		"claude": "anthropic",
		"gpt":    "openai",
		"gemini": "google",
		"mock":   "mock",
	} {
		g, err := f.CreateByID(id, WithAPIKey("k"))
		require.NoError(t, err, id)
		assert.Equal(t, want, g.ID())
	}
	_, err := f.CreateByID("nope")
	assert.Error(t, err)
}

func TestFactory_Caches(t *testing.T) {
	f := NewFactory()
	a, _ := f.Create(ProviderOpenAI, WithAPIKey("key-1"))
	b, _ := f.Create(ProviderOpenAI, WithAPIKey("key-1"))
	c, _ := f.Create(ProviderOpenAI, WithAPIKey("key-2"), WithBaseURL("http://other"))
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	f.Clear()
	d, _ := f.Create(ProviderOpenAI, WithAPIKey("key-1"))
	assert.NotSame(t, a, d)
}

func TestMockTracksConcurrency(t *testing.T) {
	m := NewMock()
	m.Delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Generate(context.Background(), &llm.Prompt{User: "x"}, llm.Options{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, m.Calls())
	assert.GreaterOrEqual(t, m.Peak(), 2)
	assert.Len(t, m.Prompts(), 5)
}

func TestMockDefaultResponses(t *testing.T) {
	m := NewMock()
	resp, err := m.Generate(context.Background(), &llm.Prompt{
		Kind: "analysis",
		User: "Intro text\n<observation>\nCracked tile\n\nLoose rail\n</observation>",
	}, llm.Options{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections":[{"title":"*Observation","points":["Cracked tile","Loose rail"]}]}`, resp.Content)

	resp, err = m.Generate(context.Background(), &llm.Prompt{
		Kind: "summary",
		User: "Normalize these:\n[\" Roof \",\"Walls\"]",
	}, llm.Options{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"titles":["Roof","Walls"]}`, resp.Content)
}

func TestMockScriptedFailureAndCancel(t *testing.T) {
	boom := errors.New("boom")
	m := NewMock()
	m.Respond = func(ctx context.Context, p *llm.Prompt) (string, error) { return "", boom }
	_, err := m.Generate(context.Background(), &llm.Prompt{}, llm.Options{})
	assert.ErrorIs(t, err, boom)

	m.Delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Generate(ctx, &llm.Prompt{}, llm.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
