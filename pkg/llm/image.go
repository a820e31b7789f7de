package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Image is either inline base64 data or a remote URL.
type Image struct {
	MediaType string
	Base64    string
	URL       string
}

// IsRemote reports whether the image is passed by URL.
func (i Image) IsRemote() bool { return i.URL != "" }

// DataURL renders inline images as a data: URL; remote images return their URL.
func (i Image) DataURL() string {
	if i.IsRemote() {
		return i.URL
	}
	return "data:" + i.MediaType + ";base64," + i.Base64
}

// LoadImage resolves an image reference. http(s) references pass through,
// anything else is read from disk and inlined.
func LoadImage(ref string) (Image, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return Image{URL: ref, MediaType: mediaTypeOf(ref, nil)}, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", ref, err)
	}
	mt := mediaTypeOf(ref, data)
	if !strings.HasPrefix(mt, "image/") {
		return Image{}, fmt.Errorf("read image %s: unsupported media type %q", ref, mt)
	}
	return Image{MediaType: mt, Base64: base64.StdEncoding.EncodeToString(data)}, nil
}

func mediaTypeOf(ref string, data []byte) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(ref))); mt != "" {
		return strings.SplitN(mt, ";", 2)[0]
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "image/jpeg"
}
