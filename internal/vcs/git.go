package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runner executes a VCS binary in a repository root and returns stdout.
// Swapped out in tests.
type runner func(ctx context.Context, root, name string, args ...string) (string, error)

type execError struct {
	name   string
	args   []string
	stderr string
	err    error
}

func (e *execError) Error() string {
	return fmt.Sprintf("%s %s failed: %v\n%s", e.name, strings.Join(e.args, " "), e.err, e.stderr)
}

func runCmd(ctx context.Context, root, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &execError{name: name, args: args, stderr: stderr.String(), err: err}
	}
	return stdout.String(), nil
}

// Git is the staged-index backend.
type Git struct {
	root  string
	amend bool
	run   runner
}

func NewGit(root string, amend bool) *Git {
	return &Git{root: root, amend: amend, run: runCmd}
}

func (g *Git) Name() string { return "git" }

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	return g.run(ctx, g.root, "git", args...)
}

func (g *Git) hasStagedChanges(ctx context.Context) (bool, error) {
	out, err := g.git(ctx, "diff", "--staged", "--name-only")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (g *Git) PendingChanges(ctx context.Context) (ChangeSet, error) {
	if g.amend {
		return g.lastCommitChanges(ctx, nil)
	}
	return g.stagedChanges(ctx, nil)
}

func (g *Git) PendingChangesFor(ctx context.Context, paths []string) (ChangeSet, error) {
	if g.amend {
		return g.lastCommitChanges(ctx, paths)
	}
	return g.stagedChanges(ctx, paths)
}

func (g *Git) stagedChanges(ctx context.Context, only []string) (ChangeSet, error) {
	out, err := g.git(ctx, "diff", "--staged", "--name-status", "-M")
	if err != nil {
		return ChangeSet{}, err
	}
	entries := parseNameStatus(out)
	if len(entries) == 0 {
		return ChangeSet{}, ErrNoStagedChanges
	}
	if only != nil {
		entries, err = restrictEntries(entries, only)
		if err != nil {
			return ChangeSet{}, err
		}
	}

	changes := make([]FileChange, 0, len(entries))
	for _, e := range entries {
		diff, err := g.git(ctx, "diff", "--staged", "-M", "--", e.path)
		if err != nil {
			return ChangeSet{}, err
		}
		changes = append(changes, FileChange{Path: e.path, Status: e.status, Diff: diff})
	}
	return NewChangeSet(changes), nil
}

func (g *Git) lastCommitChanges(ctx context.Context, only []string) (ChangeSet, error) {
	staged, err := g.hasStagedChanges(ctx)
	if err != nil {
		return ChangeSet{}, err
	}
	if staged {
		return ChangeSet{}, ErrStagedChangesPresent
	}

	out, err := g.git(ctx, "diff", "HEAD^", "HEAD", "--name-status", "-M")
	if err != nil {
		return ChangeSet{}, fmt.Errorf("reading last commit (repository needs at least two commits to amend): %w", err)
	}
	entries := parseNameStatus(out)
	if len(entries) == 0 {
		return ChangeSet{}, ErrNoPendingChanges
	}
	if only != nil {
		entries, err = restrictEntries(entries, only)
		if err != nil {
			return ChangeSet{}, err
		}
	}

	changes := make([]FileChange, 0, len(entries))
	for _, e := range entries {
		diff, err := g.git(ctx, "diff", "HEAD^", "HEAD", "-M", "--", e.path)
		if err != nil {
			return ChangeSet{}, err
		}
		changes = append(changes, FileChange{Path: e.path, Status: e.status, Diff: diff})
	}
	return NewChangeSet(changes), nil
}

func (g *Git) Commit(ctx context.Context, message string, amend bool) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return fmt.Errorf("commit message cannot be empty")
	}
	args := []string{"commit"}
	if amend {
		args = append(args, "--amend")
	}
	args = append(args, "-m", msg)
	if _, err := g.git(ctx, args...); err != nil {
		var ee *execError
		if errors.As(err, &ee) {
			return &CommitFailedError{Tool: "git", Stderr: strings.TrimSpace(ee.stderr)}
		}
		return &CommitFailedError{Tool: "git", Stderr: err.Error()}
	}
	return nil
}

type nameStatusEntry struct {
	path   string
	status Status
}

// parseNameStatus reads `git diff --name-status` output. Rename lines
// carry two paths; the new path identifies the change.
func parseNameStatus(out string) []nameStatusEntry {
	var entries []nameStatusEntry
	for _, ln := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		fields := strings.Split(ln, "\t")
		if len(fields) < 2 {
			continue
		}
		var st Status
		switch fields[0][0] {
		case 'A':
			st = Added
		case 'D':
			st = Deleted
		case 'R', 'C':
			st = Renamed
		default:
			st = Modified
		}
		path := fields[len(fields)-1]
		entries = append(entries, nameStatusEntry{path: path, status: st})
	}
	return entries
}

func restrictEntries(entries []nameStatusEntry, only []string) ([]nameStatusEntry, error) {
	known := make(map[string]nameStatusEntry, len(entries))
	for _, e := range entries {
		known[e.path] = e
	}
	out := make([]nameStatusEntry, 0, len(only))
	for _, p := range only {
		e, ok := known[p]
		if !ok {
			return nil, &InvalidPathError{Path: p}
		}
		out = append(out, e)
	}
	return out, nil
}
