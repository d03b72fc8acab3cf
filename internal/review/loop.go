// Package review drives the generate → present → revise cycle as an
// explicit finite-state machine, so cancellation and error surfacing
// behave the same at every step.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gitmuse/internal/budget"
	"gitmuse/internal/llm"
	"gitmuse/internal/vcs"
)

// State identifies one step of the review cycle.
type State int

const (
	StateInit State = iota
	StateBudgeting
	StateGenerating
	StatePresenting
	StateEditing
	StateRevising
	StateCommitting
	StateAborted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBudgeting:
		return "budgeting"
	case StateGenerating:
		return "generating"
	case StatePresenting:
		return "presenting"
	case StateEditing:
		return "editing"
	case StateRevising:
		return "revising"
	case StateCommitting:
		return "committing"
	case StateAborted:
		return "aborted"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Action is what the user chose to do with the presented message.
type Action int

const (
	ActionCommit Action = iota
	ActionEdit
	ActionRevise
	ActionAbort
)

// Outcome summarizes a finished session for exit-code mapping.
type Outcome int

const (
	// OutcomeCommitted: the message was written to the repository.
	OutcomeCommitted Outcome = iota
	// OutcomeCancelled: the user backed out cleanly.
	OutcomeCancelled
	// OutcomeFailed: the session aborted with an error.
	OutcomeFailed
)

// MessageClient is the generation surface the loop needs; satisfied by
// *llm.Client.
type MessageClient interface {
	Generate(ctx context.Context, diff string, extra []llm.Message, spec llm.RequestSpec, onDelta llm.DeltaFunc) ([]llm.Candidate, error)
	Revise(ctx context.Context, diff string, prior llm.Candidate, instruction string, spec llm.RequestSpec, onDelta llm.DeltaFunc) ([]llm.Candidate, error)
}

// Prompter is the user-interaction surface. Implementations own all
// terminal I/O; the loop never prompts directly.
type Prompter interface {
	budget.FileSelector
	// ChooseCandidate picks one of the presented candidates. ok=false
	// means the user cancelled the selection.
	ChooseCandidate(cands []llm.Candidate) (chosen llm.Candidate, ok bool, err error)
	// NextAction asks what to do with the current message.
	NextAction(message string) (Action, error)
	// EditMessage lets the user replace the message text in place.
	EditMessage(current string) (string, error)
	// ReviseInstruction collects the free-text revision request.
	ReviseInstruction() (string, error)
	// RetryCommit reports a commit failure and asks whether to retry
	// with the same message.
	RetryCommit(commitErr error) (bool, error)
}

// Session holds the state owned by one review cycle. Candidates are
// replaced wholesale whenever a generation request supersedes them.
type Session struct {
	changes     vcs.ChangeSet
	candidates  []llm.Candidate
	current     llm.Candidate
	message     string
	chosen      bool
	instruction string
}

// Loop wires the components of one review session together.
type Loop struct {
	Backend  vcs.Backend
	Budgeter *budget.Budgeter
	Client   MessageClient
	Prompter Prompter

	Spec   llm.RequestSpec
	Budget budget.Budget

	// Extra context messages sent before the diff (rewrite hint, user
	// note from the command line).
	Extra []llm.Message

	AutoCommit   bool
	AlwaysSelect bool
	Amend        bool

	// Progress starts an in-flight indicator and returns its stop
	// function. Nil disables it.
	Progress func(label string) func()
	// OnDelta receives streamed fragments. Nil disables streaming
	// display (the fragments are still consumed).
	OnDelta llm.DeltaFunc

	// Out receives user-visible status lines.
	Out io.Writer
}

// Run drives the state machine until Done or Aborted.
func (l *Loop) Run(ctx context.Context) (Outcome, error) {
	var sess Session
	state := StateInit

	for {
		switch state {
		case StateInit:
			cs, err := l.Backend.PendingChanges(ctx)
			if err != nil {
				return OutcomeFailed, err
			}
			sess.changes = cs
			state = StateBudgeting

		case StateBudgeting:
			fitted, err := l.Budgeter.Fit(ctx, l.Backend, sess.changes, l.Budget, l.AlwaysSelect)
			if err != nil {
				return OutcomeFailed, err
			}
			sess.changes = fitted
			state = StateGenerating

		case StateGenerating:
			cands, err := l.generate(ctx, sess.changes)
			if err != nil {
				return OutcomeFailed, err
			}
			sess.candidates = cands
			sess.chosen = false
			state = StatePresenting

		case StatePresenting:
			if len(sess.candidates) == 0 {
				return OutcomeFailed, errors.New("no commit message candidates were generated")
			}
			if l.AutoCommit {
				sess.current = sess.candidates[0]
				sess.message = sess.current.Message()
				state = StateCommitting
				continue
			}
			if !sess.chosen {
				chosen, ok, err := l.Prompter.ChooseCandidate(sess.candidates)
				if err != nil {
					return OutcomeFailed, err
				}
				if !ok {
					return OutcomeCancelled, nil
				}
				sess.current = chosen
				sess.message = chosen.Message()
				sess.chosen = true
			}
			action, err := l.Prompter.NextAction(sess.message)
			if err != nil {
				return OutcomeFailed, err
			}
			switch action {
			case ActionCommit:
				state = StateCommitting
			case ActionEdit:
				state = StateEditing
			case ActionRevise:
				instruction, err := l.Prompter.ReviseInstruction()
				if err != nil {
					return OutcomeFailed, err
				}
				sess.instruction = instruction
				state = StateRevising
			case ActionAbort:
				return OutcomeCancelled, nil
			}

		case StateEditing:
			edited, err := l.Prompter.EditMessage(sess.message)
			if err != nil {
				return OutcomeFailed, err
			}
			sess.message = edited
			state = StateCommitting

		case StateRevising:
			revised, err := l.revise(ctx, sess.changes, sess.current, sess.instruction)
			if err != nil {
				// Non-fatal: report and re-present the prior list.
				l.statusf("revision failed: %v", err)
				sess.chosen = false
				state = StatePresenting
				continue
			}
			sess.candidates = revised
			sess.chosen = false
			state = StatePresenting

		case StateCommitting:
			err := l.Backend.Commit(ctx, sess.message, l.Amend)
			if err == nil {
				state = StateDone
				continue
			}
			var cfe *vcs.CommitFailedError
			if !errors.As(err, &cfe) {
				return OutcomeFailed, err
			}
			if l.AutoCommit {
				return OutcomeFailed, err
			}
			retry, perr := l.Prompter.RetryCommit(err)
			if perr != nil {
				return OutcomeFailed, perr
			}
			if retry {
				// Same verbatim message; any edit goes through
				// Presenting explicitly.
				continue
			}
			sess.chosen = false
			state = StatePresenting

		case StateDone:
			return OutcomeCommitted, nil

		default:
			return OutcomeFailed, fmt.Errorf("review loop reached invalid state %v", state)
		}
	}
}

func (l *Loop) generate(ctx context.Context, cs vcs.ChangeSet) ([]llm.Candidate, error) {
	stop := l.startProgress("Generating commit messages...")
	defer stop()
	return l.Client.Generate(ctx, cs.DiffText(), l.Extra, l.Spec, l.OnDelta)
}

func (l *Loop) revise(ctx context.Context, cs vcs.ChangeSet, prior llm.Candidate, instruction string) ([]llm.Candidate, error) {
	stop := l.startProgress("Revising commit message...")
	defer stop()
	return l.Client.Revise(ctx, cs.DiffText(), prior, instruction, l.Spec, l.OnDelta)
}

func (l *Loop) startProgress(label string) func() {
	if l.Progress == nil {
		return func() {}
	}
	return l.Progress(label)
}

func (l *Loop) statusf(format string, args ...any) {
	if l.Out != nil {
		fmt.Fprintf(l.Out, format+"\n", args...)
	}
}
