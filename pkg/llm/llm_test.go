package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorExposesStatus(t *testing.T) {
	err := fmt.Errorf("generate: %w", &StatusError{Provider: "openai", Status: 429, Body: "slow down"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.HTTPStatus())
	assert.Contains(t, err.Error(), "openai API error 429")
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 3, OutputTokens: 4}.Add(Usage{InputTokens: 1, OutputTokens: 2})
	assert.Equal(t, Usage{InputTokens: 4, OutputTokens: 6}, u)
}

func TestLoadImageLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	png := []byte("\x89PNG\r\n\x1a\n0000")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.False(t, img.IsRemote())
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgowMDAw", img.DataURL())
}

func TestLoadImageURLPassesThrough(t *testing.T) {
	img, err := LoadImage("https://example.com/a.jpg")
	require.NoError(t, err)
	assert.True(t, img.IsRemote())
	assert.Equal(t, "https://example.com/a.jpg", img.DataURL())
	assert.Equal(t, "image/jpeg", img.MediaType)
}

func TestLoadImageErrors(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err = LoadImage(txt)
	assert.ErrorContains(t, err, "unsupported media type")
}
