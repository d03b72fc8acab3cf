// Package vcs abstracts the version control systems gitmuse can draft
// commit messages for. Two backends exist: Git, which works off the
// staged index, and Jujutsu, which has no staging concept and diffs the
// working copy against its parent. Detection happens once; callers hold
// a Backend and never re-dispatch.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Status classifies a single file entry in a change set.
type Status int

const (
	Added Status = iota
	Modified
	Deleted
	Renamed
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileChange is one file-level diff. Diff is captured once and never
// mutated afterwards.
type FileChange struct {
	Path   string
	Status Status
	Diff   string
}

// ChangeSet is an ordered, immutable snapshot of pending changes.
// Re-querying the backend produces a new ChangeSet.
type ChangeSet struct {
	changes []FileChange
}

func NewChangeSet(changes []FileChange) ChangeSet {
	cp := make([]FileChange, len(changes))
	copy(cp, changes)
	return ChangeSet{changes: cp}
}

// Files returns the paths in capture order.
func (cs ChangeSet) Files() []string {
	out := make([]string, len(cs.changes))
	for i, ch := range cs.changes {
		out[i] = ch.Path
	}
	return out
}

func (cs ChangeSet) Changes() []FileChange {
	cp := make([]FileChange, len(cs.changes))
	copy(cp, cs.changes)
	return cp
}

func (cs ChangeSet) Len() int { return len(cs.changes) }

func (cs ChangeSet) Empty() bool { return len(cs.changes) == 0 }

// DiffText concatenates the per-file diffs in capture order.
func (cs ChangeSet) DiffText() string {
	var n int
	for _, ch := range cs.changes {
		n += len(ch.Diff)
	}
	buf := make([]byte, 0, n)
	for _, ch := range cs.changes {
		buf = append(buf, ch.Diff...)
	}
	return string(buf)
}

// Size is the serialized diff length in bytes.
func (cs ChangeSet) Size() int {
	var n int
	for _, ch := range cs.changes {
		n += len(ch.Diff)
	}
	return n
}

// EstimatedTokens approximates the model token cost of the diff. Four
// bytes per token tracks cl100k-family tokenizers closely enough for
// budgeting purposes.
func (cs ChangeSet) EstimatedTokens() int {
	return EstimateTokens(cs.Size())
}

func EstimateTokens(bytes int) int {
	return (bytes + 3) / 4
}

// Backend is the capability surface the review loop needs from a VCS.
type Backend interface {
	// Name identifies the backend ("git" or "jj").
	Name() string
	// PendingChanges returns the change set a commit would capture.
	// In amend mode the Git backend diffs the last commit against its
	// parent instead of reading the index.
	PendingChanges(ctx context.Context) (ChangeSet, error)
	// PendingChangesFor restricts the change set to the given paths.
	// Paths outside the pending set fail with InvalidPathError.
	PendingChangesFor(ctx context.Context, paths []string) (ChangeSet, error)
	// Commit finalizes the message. Not idempotent unless amending.
	Commit(ctx context.Context, message string, amend bool) error
}

var (
	// ErrNotARepository: neither Git nor Jujutsu controls the directory.
	ErrNotARepository = errors.New("not inside a git or jj repository")
	// ErrNoStagedChanges: the Git index is empty.
	ErrNoStagedChanges = errors.New("no staged changes")
	// ErrNoPendingChanges: the Jujutsu working copy matches its parent.
	ErrNoPendingChanges = errors.New("no pending changes")
	// ErrStagedChangesPresent: --amend with a non-empty Git index.
	ErrStagedChangesPresent = errors.New("staged changes present; amend only rewrites the last commit message")
)

// InvalidPathError reports a restriction path that is not part of the
// pending change set.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q is not part of the pending changes", e.Path)
}

// CommitFailedError carries the VCS tool's stderr so the failure is
// actionable without debug logging.
type CommitFailedError struct {
	Tool   string
	Stderr string
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("%s commit failed: %s", e.Tool, e.Stderr)
}

// UnsupportedVcsVersionError reports a tool version that rejects a flag
// this backend depends on.
type UnsupportedVcsVersionError struct {
	Tool string
	Flag string
}

func (e *UnsupportedVcsVersionError) Error() string {
	return fmt.Sprintf("installed %s does not support %q; please upgrade %s", e.Tool, e.Flag, e.Tool)
}

// DetectOptions carries backend-specific knobs resolved by the CLI.
type DetectOptions struct {
	// Amend makes the Git backend diff the last commit instead of the
	// index. Ignored by Jujutsu, where describing is always a rewrite.
	Amend bool
	// Revision selects a Jujutsu change other than the working copy.
	Revision string
}

// Detect walks up from dir looking for VCS metadata. Jujutsu wins when
// a .jj workspace is colocated with .git.
func Detect(dir string, opts DetectOptions) (Backend, error) {
	root, kind, err := findRoot(dir)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "jj":
		if opts.Revision != "" {
			if err := ValidateRevision(opts.Revision); err != nil {
				return nil, err
			}
		}
		return NewJujutsu(root, opts.Revision), nil
	default:
		return NewGit(root, opts.Amend), nil
	}
}

func findRoot(dir string) (string, string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for {
		if isDir(filepath.Join(cur, ".jj")) {
			return cur, "jj", nil
		}
		if exists(filepath.Join(cur, ".git")) {
			return cur, "git", nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", ErrNotARepository
		}
		cur = parent
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
