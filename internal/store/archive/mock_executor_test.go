package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// mockExecutor is an in-memory Executor. It mirrors the work-tree effects of
// git add/rm and records commit subjects for assertions.
type mockExecutor struct {
	dir     string
	repo    bool
	staged  []string
	commits []CommitInfo

	commitErr error
	addErr    error
}

func newMockExecutor(dir string) *mockExecutor {
	return &mockExecutor{dir: dir}
}

func (m *mockExecutor) IsRepo() bool { return m.repo }

func (m *mockExecutor) Init() error {
	m.repo = true
	return nil
}

func (m *mockExecutor) Add(paths ...string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.staged = append(m.staged, paths...)
	return nil
}

func (m *mockExecutor) Remove(paths ...string) error {
	for _, p := range paths {
		// git rm deletes from the work tree; missing paths are ignored.
		_ = os.Remove(filepath.Join(m.dir, p))
	}
	return nil
}

func (m *mockExecutor) Commit(message string) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits = append(m.commits, CommitInfo{
		Hash:    fmt.Sprintf("%040d", len(m.commits)+1),
		Subject: message,
		Date:    time.Now().UTC(),
	})
	m.staged = nil
	return nil
}

func (m *mockExecutor) HasCommitWithSubject(marker string) (bool, error) {
	for _, c := range m.commits {
		if strings.Contains(c.Subject, marker) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockExecutor) Log(limit int) ([]CommitInfo, error) {
	out := make([]CommitInfo, 0, limit)
	for i := len(m.commits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.commits[i])
	}
	return out, nil
}

func (m *mockExecutor) HeadHash() (string, error) {
	if len(m.commits) == 0 {
		return "", nil
	}
	return m.commits[len(m.commits)-1].Hash, nil
}
