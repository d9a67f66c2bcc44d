// Package render fills HTML templates that use {{key}} placeholders.
package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when the template file cannot be read
var ErrNotFound = errors.New("render: template not found")

// Renderer reads templates from disk on every call, so edits show up
// without a restart. Placeholders without a value are left as they are.
type Renderer struct {
	root string
}

// NewRenderer loads templates below root. An empty root resolves paths
// against the working directory as given.
func NewRenderer(root string) *Renderer {
	return &Renderer{root: root}
}

func (r *Renderer) resolve(path string) string {
	if r.root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(r.root, filepath.Clean("/"+path))
}

// Render reads the template at path and replaces every {{key}} with
// data[key]. Replacement text is not rescanned for placeholders.
func (r *Renderer) Render(path string, data map[string]string) (string, error) {
	content, err := os.ReadFile(r.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	return Fill(string(content), data), nil
}

// Fill replaces every {{key}} in content with data[key]
func Fill(content string, data map[string]string) string {
	if len(data) == 0 {
		return content
	}

	// Sorted so overlapping keys resolve the same way on every call
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
