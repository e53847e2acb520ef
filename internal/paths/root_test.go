package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRootAppendsRegistryDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, ".skillstore"), ResolveRoot(dir))
}

func TestResolveRootAcceptsRegistryDirItself(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, ".skillstore")
	assert.Equal(t, root, ResolveRoot(root))
}

func TestResolveRootAcceptsDataDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.db"), []byte("x"), 0o644))
	assert.Equal(t, dir, ResolveRoot(dir))
}

func TestResolveRootFollowsRedirect(t *testing.T) {
	main := t.TempDir()
	mainRoot := filepath.Join(main, ".skillstore")
	require.NoError(t, os.MkdirAll(mainRoot, 0o755))

	worktree := t.TempDir()
	wtRoot := filepath.Join(worktree, ".skillstore")
	require.NoError(t, os.MkdirAll(wtRoot, 0o755))
	rel, err := filepath.Rel(wtRoot, mainRoot)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(wtRoot, "redirect"), []byte(rel+"\n"), 0o644))

	assert.Equal(t, mainRoot, ResolveRoot(worktree))
}

func TestResolveRootIgnoresEmptyRedirect(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, ".skillstore")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "redirect"), []byte("  \n"), 0o644))

	assert.Equal(t, root, ResolveRoot(root))
}
