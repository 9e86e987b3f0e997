package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and its parents) holding content. An empty content
// writes the file name so distinct files differ.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if len(content) == 0 {
		content = []byte(filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTree creates every relative path under root.
func WriteTree(t testing.TB, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), nil)
	}
}
