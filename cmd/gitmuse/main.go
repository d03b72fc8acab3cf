// gitmuse drafts conventional commit messages for Git and Jujutsu
// repositories with an OpenAI-compatible model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gitmuse/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts app.Options
	exitCode := 0

	root := &cobra.Command{
		Use:   "gitmuse",
		Short: "AI-assisted conventional commit messages for git and jj",
		Long: `gitmuse reads your pending changes, asks an OpenAI-compatible model
for conventional commit message suggestions, and lets you pick, edit,
revise or copy one before committing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ChoicesSet = cmd.Flags().Changed("choices")
			opts.StreamSet = cmd.Flags().Changed("stream")
			opts.RewriteSet = cmd.Flags().Changed("rewrite")
			// Free arguments become extra context for the model.
			opts.Message = strings.Join(args, " ")
			exitCode = app.Run(cmd.Context(), opts)
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.Model, "model", "m", "", "model to use (gpt-5.1, gpt-5.1-codex, gpt-5.1-codex-mini)")
	flags.IntVarP(&opts.Choices, "choices", "n", 3, "number of commit message suggestions")
	flags.StringVarP(&opts.ReasoningEffort, "reasoning-effort", "e", "", "reasoning effort: none, low, medium, high")
	flags.StringVarP(&opts.Verbosity, "verbosity", "v", "", "output verbosity: low, medium, high")
	flags.BoolVar(&opts.Stream, "stream", true, "stream the response as it is generated")
	flags.BoolVarP(&opts.AutoCommit, "auto-commit", "a", false, "commit the first suggestion without prompting")
	flags.BoolVar(&opts.Amend, "amend", false, "rewrite the message of the last commit (git)")
	flags.BoolVar(&opts.SelectFiles, "select-files", false, "always choose which files to include")
	flags.StringVar(&opts.APIEndpoint, "api-endpoint", "", "chat completions endpoint URL")
	flags.StringVar(&opts.APIKey, "api-key", "", "API key (overrides the environment variable)")
	flags.StringVarP(&opts.Revision, "revision", "r", "", "jj revision to describe (default @)")
	flags.BoolVar(&opts.Rewrite, "rewrite", false, "feed the current jj description to the AI as a hint")
	flags.StringVar(&opts.DebugFile, "debug-file", "", "append session debug lines to this file")
	flags.StringVar(&opts.Dir, "repo", "", "repository directory (default: current directory)")
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the config file")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Edit the gitmuse configuration interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Configure(opts.ConfigPath)
		},
	}
	root.AddCommand(configCmd)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}
