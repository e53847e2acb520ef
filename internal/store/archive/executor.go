// Package archive implements the content archive backend: an append-only,
// git-backed store of human-readable skill files. Every write is one commit
// whose message carries the transaction id, which makes replays detectable
// and gives the registry a diffable audit history for free.
package archive

import (
	"strconv"
	"strings"
	"time"
)

// CommitInfo holds information about an archive commit.
type CommitInfo struct {
	Hash    string    // Full 40-char SHA
	Subject string    // First line of commit message
	Date    time.Time // Commit timestamp
}

// Executor defines the interface for git operations against the archive.
// This abstraction allows for easy testing with mock implementations.
type Executor interface {
	IsRepo() bool
	Init() error
	Add(paths ...string) error
	Remove(paths ...string) error
	Commit(message string) error
	// HasCommitWithSubject reports whether any commit subject contains the
	// given marker string. Used for idempotent replay detection.
	HasCommitWithSubject(marker string) (bool, error)
	// Log returns the most recent commits, up to limit.
	Log(limit int) ([]CommitInfo, error)
	// HeadHash returns the current HEAD commit hash, or "" for an empty repo.
	HeadHash() (string, error)
}

// parseLog parses `git log --format=%H%x1f%s%x1f%ct` output.
func parseLog(output string) []CommitInfo {
	var commits []CommitInfo
	for line := range strings.SplitSeq(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		unix, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, CommitInfo{
			Hash:    parts[0],
			Subject: parts[1],
			Date:    time.Unix(unix, 0).UTC(),
		})
	}
	return commits
}
