package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Jujutsu diffs the working copy (or a named revision) against its
// parent. There is no staging concept; committing means setting the
// change description via `jj describe`.
type Jujutsu struct {
	root     string
	revision string
	run      runner
}

func NewJujutsu(root, revision string) *Jujutsu {
	if revision == "" {
		revision = "@"
	}
	return &Jujutsu{root: root, revision: revision, run: runCmd}
}

func (j *Jujutsu) Name() string { return "jj" }

func (j *Jujutsu) jj(ctx context.Context, args ...string) (string, error) {
	out, err := j.run(ctx, j.root, "jj", args...)
	if err != nil {
		var ee *execError
		if errors.As(err, &ee) {
			if flag, ok := rejectedFlag(ee.stderr, args); ok {
				return "", &UnsupportedVcsVersionError{Tool: "jj", Flag: flag}
			}
		}
		return "", err
	}
	return out, nil
}

// rejectedFlag checks stderr for the argument-rejection wording jj has
// used across versions, so an old binary produces a version hint rather
// than a raw parse error.
func rejectedFlag(stderr string, args []string) (string, bool) {
	low := strings.ToLower(stderr)
	if !strings.Contains(low, "unexpected argument") &&
		!strings.Contains(low, "unrecognized option") &&
		!strings.Contains(low, "found argument") {
		return "", false
	}
	for _, a := range args {
		if strings.HasPrefix(a, "-") && strings.Contains(stderr, a) {
			return a, true
		}
	}
	if len(args) > 0 {
		return args[0], true
	}
	return "", false
}

func (j *Jujutsu) PendingChanges(ctx context.Context) (ChangeSet, error) {
	return j.changes(ctx, nil)
}

func (j *Jujutsu) PendingChangesFor(ctx context.Context, paths []string) (ChangeSet, error) {
	return j.changes(ctx, paths)
}

func (j *Jujutsu) changes(ctx context.Context, only []string) (ChangeSet, error) {
	out, err := j.jj(ctx, "diff", "-r", j.revision, "--summary")
	if err != nil {
		return ChangeSet{}, err
	}
	entries := parseJJSummary(out)
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
		diff, err := j.jj(ctx, "diff", "-r", j.revision, "--git", "--", e.path)
		if err != nil {
			return ChangeSet{}, err
		}
		changes = append(changes, FileChange{Path: e.path, Status: e.status, Diff: diff})
	}
	return NewChangeSet(changes), nil
}

// Description returns the current description of the target revision,
// used as a rewrite hint for the model. Empty when unset.
func (j *Jujutsu) Description(ctx context.Context) (string, error) {
	out, err := j.jj(ctx, "log", "-r", j.revision, "--no-graph", "-T", "description")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Commit sets the revision description. Describing always replaces the
// message, so the amend flag carries no extra meaning here.
func (j *Jujutsu) Commit(ctx context.Context, message string, _ bool) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if _, err := j.jj(ctx, "describe", "-r", j.revision, "-m", msg); err != nil {
		var uv *UnsupportedVcsVersionError
		if errors.As(err, &uv) {
			return err
		}
		var ee *execError
		if errors.As(err, &ee) {
			return &CommitFailedError{Tool: "jj", Stderr: strings.TrimSpace(ee.stderr)}
		}
		return &CommitFailedError{Tool: "jj", Stderr: err.Error()}
	}
	return nil
}

// parseJJSummary reads `jj diff --summary` lines of the form
// "M path/to/file".
func parseJJSummary(out string) []nameStatusEntry {
	var entries []nameStatusEntry
	for _, ln := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		code, rest, ok := strings.Cut(ln, " ")
		if !ok || code == "" {
			continue
		}
		var st Status
		switch code[0] {
		case 'A':
			st = Added
		case 'D':
			st = Deleted
		case 'R', 'C':
			st = Renamed
		default:
			st = Modified
		}
		path := strings.TrimSpace(rest)
		// Rename lines look like "R old{path => new}path" in some
		// versions; keep the raw path text, selection matches on it.
		entries = append(entries, nameStatusEntry{path: path, status: st})
	}
	return entries
}

// ValidateRevision rejects revision arguments that look like revset
// expressions rather than plain change or commit IDs.
func ValidateRevision(rev string) error {
	if rev == "" {
		return fmt.Errorf("revision cannot be empty")
	}
	if rev == "@" {
		return nil
	}
	for _, c := range rev {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return fmt.Errorf("revision %q contains invalid characters; only alphanumerics, '-', '_', '.' and ':' are allowed", rev)
		}
	}
	return nil
}
