// Package budget narrows an oversized change set until its diff fits
// the model's context window.
package budget

import (
	"context"
	"fmt"

	"gitmuse/internal/vcs"
)

// Budget is the diff allowance in estimated tokens. Reserved covers the
// system prompt and any extra user message.
type Budget struct {
	ContextTokens int
	Reserved      int
}

// Remaining is the token allowance left for the diff itself.
func (b Budget) Remaining() int {
	if b.Reserved >= b.ContextTokens {
		return 0
	}
	return b.ContextTokens - b.Reserved
}

// DiffTooLargeError reports a diff the user declined to narrow under
// the budget.
type DiffTooLargeError struct {
	Tokens int
	Budget int
}

func (e *DiffTooLargeError) Error() string {
	return fmt.Sprintf("diff is ~%d tokens but the model budget is %d; no files selected to narrow it", e.Tokens, e.Budget)
}

// FileSelector asks the user for a non-empty subset of files. A nil
// or empty result means the user aborted the selection.
type FileSelector interface {
	SelectFiles(ctx context.Context, files []string, tokens, budget int) ([]string, error)
}

// Budgeter fits a ChangeSet into a Budget by file-level selection.
type Budgeter struct {
	Selector FileSelector
}

// Fit returns a change set whose estimated token cost is within budget.
// Under-budget sets pass through untouched unless alwaysSelect forces
// one selection round. Each narrowing round restricts the universe to
// the previous selection, so the loop terminates in at most len(files)
// iterations.
func (b *Budgeter) Fit(ctx context.Context, backend vcs.Backend, cs vcs.ChangeSet, budget Budget, alwaysSelect bool) (vcs.ChangeSet, error) {
	remaining := budget.Remaining()
	tokens := cs.EstimatedTokens()
	if tokens <= remaining && !alwaysSelect {
		return cs, nil
	}

	universe := cs.Files()
	for {
		selected, err := b.Selector.SelectFiles(ctx, universe, tokens, remaining)
		if err != nil {
			return vcs.ChangeSet{}, &DiffTooLargeError{Tokens: tokens, Budget: remaining}
		}
		if len(selected) == 0 {
			return vcs.ChangeSet{}, &DiffTooLargeError{Tokens: tokens, Budget: remaining}
		}

		narrowed, err := backend.PendingChangesFor(ctx, selected)
		if err != nil {
			return vcs.ChangeSet{}, err
		}
		tokens = narrowed.EstimatedTokens()
		if tokens <= remaining {
			return narrowed, nil
		}
		if len(selected) >= len(universe) {
			// No shrink and still over budget: another round with the
			// same universe cannot change the outcome.
			return vcs.ChangeSet{}, &DiffTooLargeError{Tokens: tokens, Budget: remaining}
		}
		universe = selected
	}
}
