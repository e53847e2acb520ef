package archive

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/quarrylabs/skillstore/internal/log"
)

// RealExecutor implements Executor by shelling out to the git CLI.
type RealExecutor struct {
	dir string
}

// NewRealExecutor creates an executor rooted at the given directory.
func NewRealExecutor(dir string) *RealExecutor {
	return &RealExecutor{dir: dir}
}

// run executes a git command in the archive directory and returns its output.
func (e *RealExecutor) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = e.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Debug(log.CatArchive, "git command failed",
			"args", strings.Join(args, " "), "output", strings.TrimSpace(string(out)))
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// IsRepo checks whether the directory is inside a git work tree.
func (e *RealExecutor) IsRepo() bool {
	out, err := e.run("rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Init initializes a fresh repository with a deterministic default branch.
func (e *RealExecutor) Init() error {
	if _, err := e.run("init", "--initial-branch=main"); err != nil {
		return err
	}
	// Commits must succeed on machines without a global git identity.
	if _, err := e.run("config", "user.name", "skillstore"); err != nil {
		return err
	}
	_, err := e.run("config", "user.email", "skillstore@localhost")
	return err
}

// Add stages the given paths, relative to the archive root.
func (e *RealExecutor) Add(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := e.run(args...)
	return err
}

// Remove stages removal of the given paths. Missing paths are not an error.
func (e *RealExecutor) Remove(paths ...string) error {
	args := append([]string{"rm", "--ignore-unmatch", "--quiet", "--"}, paths...)
	_, err := e.run(args...)
	return err
}

// Commit records staged changes. An empty commit is allowed so that replayed
// writes which changed nothing still leave their transaction marker.
func (e *RealExecutor) Commit(message string) error {
	_, err := e.run("commit", "--allow-empty", "--no-verify", "-m", message)
	return err
}

// HasCommitWithSubject greps the commit log for the marker string.
func (e *RealExecutor) HasCommitWithSubject(marker string) (bool, error) {
	head, err := e.HeadHash()
	if err != nil {
		return false, err
	}
	if head == "" {
		return false, nil
	}
	out, err := e.run("log", "--fixed-strings", "--grep", marker, "-n", "1", "--format=%H")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Log returns the most recent commits, newest first.
func (e *RealExecutor) Log(limit int) ([]CommitInfo, error) {
	head, err := e.HeadHash()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	out, err := e.run("log", "-n", strconv.Itoa(limit), "--format=%H%x1f%s%x1f%ct")
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// HeadHash returns the current HEAD hash, or "" when the repo has no commits.
func (e *RealExecutor) HeadHash() (string, error) {
	out, err := e.run("rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		// rev-parse fails on an empty repository; treat that as no HEAD.
		return "", nil
	}
	return strings.TrimSpace(out), nil
}
