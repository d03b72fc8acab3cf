// Package app wires configuration, VCS detection and the review loop
// into one invocation.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"

	"gitmuse/internal/budget"
	"gitmuse/internal/config"
	"gitmuse/internal/llm"
	"gitmuse/internal/review"
	"gitmuse/internal/vcs"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

// Options is the flag surface, merged with the config file in Run.
type Options struct {
	ConfigPath string
	Dir        string

	Model           string
	APIEndpoint     string
	APIKey          string
	Choices         int
	ChoicesSet      bool
	ReasoningEffort string
	Verbosity       string
	Stream          bool
	StreamSet       bool

	AutoCommit  bool
	Amend       bool
	SelectFiles bool

	// Extra free-text context appended to the prompt.
	Message string

	// Jujutsu options.
	Revision   string
	Rewrite    bool
	RewriteSet bool

	DebugFile string
}

// Exit codes expected by callers of the binary.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNoChanges    = 2
	ExitDiffTooLarge = 3
	ExitAuth         = 4
)

// ExitCode maps a session result onto the documented process exit
// codes. A cleanly cancelled session is a success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, vcs.ErrNoStagedChanges) || errors.Is(err, vcs.ErrNoPendingChanges) {
		return ExitNoChanges
	}
	var dtl *budget.DiffTooLargeError
	if errors.As(err, &dtl) {
		return ExitDiffTooLarge
	}
	var ae *llm.AuthenticationError
	if errors.As(err, &ae) {
		return ExitAuth
	}
	return ExitFailure
}

// Run executes one review session and returns the process exit code.
func Run(ctx context.Context, opts Options) int {
	err := run(ctx, opts)
	if err == nil {
		return ExitOK
	}
	reportError(err)
	return ExitCode(err)
}

func run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	model := config.ResolveString(opts.Model, "", cfg.Model, "gpt-5.1")
	if err := llm.ValidateModel(model); err != nil {
		return err
	}

	choices := config.ResolveInt(opts.Choices, opts.ChoicesSet, cfg.Choices, 3)
	if choices < 1 {
		choices = 1
	}
	stream := config.ResolveBool(opts.Stream, opts.StreamSet, cfg.Stream, true)
	if opts.AutoCommit {
		choices = 1
	}

	spec := llm.RequestSpec{
		Model:           model,
		ReasoningEffort: llm.Effort(config.ResolveString(opts.ReasoningEffort, "", cfg.ReasoningEffort, "low")),
		Verbosity:       llm.Verbosity(config.ResolveString(opts.Verbosity, "", cfg.Verbosity, "medium")),
		ChoiceCount:     choices,
		Stream:          stream,
	}
	if err := llm.ValidateSpec(spec); err != nil {
		return err
	}

	apiKey, err := resolveAPIKey(opts.APIKey, cfg.APIKeyEnvVar)
	if err != nil {
		return err
	}
	endpoint := config.ResolveString(opts.APIEndpoint, "", cfg.APIEndpoint, "")

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	backend, err := vcs.Detect(dir, vcs.DetectOptions{Amend: opts.Amend, Revision: opts.Revision})
	if err != nil {
		return err
	}

	dbg, err := newDebugLog(opts.DebugFile)
	if err != nil {
		return err
	}
	defer dbg.Close()
	dbg.Printf("session start: backend=%s model=%s choices=%d stream=%v amend=%v",
		backend.Name(), model, choices, stream, opts.Amend)

	extra, err := extraMessages(ctx, backend, cfg, opts)
	if err != nil {
		return err
	}

	reserved := vcs.EstimateTokens(len(llm.SystemPrompt))
	for _, m := range extra {
		reserved += vcs.EstimateTokens(len(m.Content))
	}

	prompter := review.NewTerminalPrompter()
	client := llm.NewClient(endpoint, apiKey)

	loop := &review.Loop{
		Backend:      backend,
		Budgeter:     &budget.Budgeter{Selector: prompter},
		Client:       client,
		Prompter:     prompter,
		Spec:         spec,
		Budget:       budget.Budget{ContextTokens: llm.ContextTokens(model), Reserved: reserved},
		Extra:        extra,
		AutoCommit:   opts.AutoCommit,
		AlwaysSelect: opts.SelectFiles,
		Amend:        opts.Amend,
		Out:          os.Stderr,
	}
	wireProgress(loop, stream && !opts.AutoCommit)

	outcome, err := loop.Run(ctx)
	if err != nil {
		dbg.Printf("session failed: %v", err)
		return err
	}

	switch outcome {
	case review.OutcomeCommitted:
		dbg.Printf("session committed")
		switch {
		case backend.Name() == "jj":
			fmt.Println(successStyle.Render("Description set successfully! 🎉"))
		case opts.Amend:
			fmt.Println(successStyle.Render("Commit message amended! 🎉"))
		default:
			fmt.Println(successStyle.Render("Commit successful! 🎉"))
		}
	case review.OutcomeCancelled:
		dbg.Printf("session cancelled by user")
		fmt.Println(noticeStyle.Render("Cancelled."))
	}
	return nil
}

func resolveAPIKey(flagKey, envVar string) (string, error) {
	if flagKey != "" {
		return flagKey, nil
	}
	envVar = strings.TrimSpace(envVar)
	if envVar == "" {
		// An empty env var name means the endpoint needs no key
		// (local OpenAI-compatible servers).
		return "", nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key found: set the %s environment variable or pass --api-key", envVar)
}

// extraMessages assembles optional context sent ahead of the diff: the
// current jj description when rewriting, and any note from the command
// line.
func extraMessages(ctx context.Context, backend vcs.Backend, cfg config.FileConfig, opts Options) ([]llm.Message, error) {
	var extra []llm.Message

	rewrite := config.ResolveBool(opts.Rewrite, opts.RewriteSet, cfg.RewriteDefault, false)
	if rewrite {
		jj, ok := backend.(*vcs.Jujutsu)
		if !ok {
			return nil, fmt.Errorf("--rewrite only applies to Jujutsu repositories")
		}
		desc, err := jj.Description(ctx)
		if err != nil {
			return nil, err
		}
		if desc != "" {
			extra = append(extra, llm.User("Current description: "+desc))
		}
	}

	if msg := strings.TrimSpace(opts.Message); msg != "" {
		extra = append(extra, llm.User(msg))
	}
	return extra, nil
}

// wireProgress attaches the spinner and, when streaming, a fragment
// printer that takes over from the spinner at the first token.
func wireProgress(loop *review.Loop, streamDisplay bool) {
	var (
		mu      sync.Mutex
		current *spinner.Spinner
	)

	loop.Progress = func(label string) func() {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " " + label
		s.Start()
		mu.Lock()
		current = s
		mu.Unlock()
		return func() {
			mu.Lock()
			defer mu.Unlock()
			if current != nil {
				current.Stop()
				current = nil
			}
			fmt.Println()
		}
	}

	if !streamDisplay {
		return
	}

	lastChoice := -1
	loop.OnDelta = func(choice int, fragment string) {
		mu.Lock()
		if current != nil {
			current.Stop()
			current = nil
		}
		mu.Unlock()
		if choice != lastChoice {
			if lastChoice != -1 {
				fmt.Println()
			}
			fmt.Print(noticeStyle.Render(fmt.Sprintf("\n[%d] %s\n", choice, strings.Repeat("=", 40))))
			lastChoice = choice
		}
		fmt.Print(fragment)
	}
}

func reportError(err error) {
	if errors.Is(err, vcs.ErrNoStagedChanges) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Nothing to commit.")+" "+
			noticeStyle.Render("Stage the files you want to commit first: git add -A"))
		return
	}
	if errors.Is(err, vcs.ErrNoPendingChanges) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Nothing to commit.")+" "+
			noticeStyle.Render("The working copy has no changes against its parent."))
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
}
