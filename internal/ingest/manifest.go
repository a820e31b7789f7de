package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joss/obsreport/internal/domain"
)

// ManifestItem is one entry of a manifest file.
type ManifestItem struct {
	Description string `yaml:"description"`
	Group       string `yaml:"group,omitempty"`
	Image       string `yaml:"image,omitempty"`
}

// Manifest is the on-disk input description. JSON manifests parse too,
// since JSON is valid YAML.
//
//	items:
//	  - description: Cracked tiles above the porch
//	    image: photos/porch.jpg
//	    group: Roof
//	context:
//	  - notes/site-brief.md
type Manifest struct {
	Items   []ManifestItem `yaml:"items"`
	Context []string       `yaml:"context,omitempty"`
}

// FromManifest reads a YAML or JSON manifest. A bare list of items is
// accepted as well. Sequence numbers follow list order; relative paths are
// resolved against the manifest's directory.
func FromManifest(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}

	base := filepath.Dir(path)
	in := &Input{}
	for i, it := range m.Items {
		if strings.TrimSpace(it.Description) == "" && strings.TrimSpace(it.Image) == "" {
			return nil, fmt.Errorf("ingest: %s: item %d has neither description nor image", path, i)
		}
		in.Items = append(in.Items, domain.WorkItem{
			Seq:         i,
			Description: strings.TrimSpace(it.Description),
			Group:       strings.TrimSpace(it.Group),
			Image:       resolve(base, it.Image),
		})
	}
	for _, ref := range m.Context {
		note, err := readNote(resolve(base, ref))
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		in.Notes = append(in.Notes, note)
	}
	return in, nil
}

// ParseManifest decodes manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("parse manifest: empty document")
	}

	var m Manifest
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&m.Items); err != nil {
			return nil, fmt.Errorf("parse manifest items: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("parse manifest: expected a list or a mapping")
	}
	return &m, nil
}
