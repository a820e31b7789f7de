package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/obsreport/internal/domain"
)

// ImagePattern selects the images of a directory input.
const ImagePattern = "**/*.{jpg,jpeg,png,webp,gif,JPG,JPEG,PNG}"

// NotesPattern selects reference notes under the notes/ folder.
const NotesPattern = "notes/**/*.{md,txt}"

// FromDirectory turns every image under root into a work item, in path
// order. A sidecar file with the same base name and a .txt extension holds
// the description; an image inside a subfolder is grouped under that
// folder's name. Hidden folders and notes/ are skipped.
func FromDirectory(root string) (*Input, error) {
	fsys := os.DirFS(root)

	var images []string
	err := doublestar.GlobWalk(fsys, ImagePattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() || hidden(p) || strings.HasPrefix(p, "notes/") {
			return nil
		}
		images = append(images, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: glob images: %w", err)
	}
	sort.Strings(images)

	in := &Input{}
	for i, p := range images {
		item := domain.WorkItem{
			Seq:   i,
			Image: filepath.Join(root, filepath.FromSlash(p)),
		}
		if dir := path.Dir(p); dir != "." {
			item.Group = strings.ReplaceAll(path.Base(dir), "_", " ")
		}
		sidecar := strings.TrimSuffix(p, path.Ext(p)) + ".txt"
		if data, err := fs.ReadFile(fsys, sidecar); err == nil {
			item.Description = strings.TrimSpace(string(data))
		}
		in.Items = append(in.Items, item)
	}

	var notes []string
	err = doublestar.GlobWalk(fsys, NotesPattern, func(p string, d fs.DirEntry) error {
		if !d.IsDir() {
			notes = append(notes, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: glob notes: %w", err)
	}
	sort.Strings(notes)
	for _, p := range notes {
		note, err := readNote(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		in.Notes = append(in.Notes, note)
	}
	return in, nil
}

func hidden(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
