// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrylabs/skillstore/internal/config"
)

// ResolveRoot resolves the registry root directory from user input.
// It normalizes the input (accepting either a project directory or the
// registry directory itself) and follows redirect files so git worktrees can
// share one registry.
//
// Input normalization:
//   - "" -> ~/.skillstore
//   - "/path/to/project" -> "/path/to/project/.skillstore"
//   - "/path/to/project/.skillstore" -> "/path/to/project/.skillstore"
//   - "/path/to/data" (containing index.db) -> "/path/to/data"
func ResolveRoot(path string) string {
	if path == "" {
		return config.DefaultRoot()
	}
	path = filepath.Clean(path)

	if filepath.Base(path) == ".skillstore" {
		return followRedirect(path)
	}

	// A directory that already holds an index database is itself a root.
	if _, err := os.Stat(filepath.Join(path, "index.db")); err == nil {
		return followRedirect(path)
	}

	return followRedirect(filepath.Join(path, ".skillstore"))
}

// followRedirect checks for a redirect file and follows it if present.
// Worktrees keep a redirect pointing at the main worktree's registry so all
// checkouts share one index and archive.
func followRedirect(root string) string {
	content, err := os.ReadFile(filepath.Join(root, "redirect"))
	if err != nil {
		return root
	}

	target := strings.TrimSpace(string(content))
	if target == "" {
		return root
	}

	return filepath.Clean(filepath.Join(root, target))
}
