package app

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"gitmuse/internal/config"
	"gitmuse/internal/llm"
)

// Configure opens the interactive settings editor and saves the result.
func Configure(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	model := cfg.Model
	endpoint := cfg.APIEndpoint
	keyEnvVar := cfg.APIKeyEnvVar
	effort := cfg.ReasoningEffort
	verbosity := cfg.Verbosity
	choicesStr := "3"
	if cfg.Choices != nil {
		choicesStr = strconv.Itoa(*cfg.Choices)
	}
	stream := cfg.Stream == nil || *cfg.Stream
	rewrite := cfg.RewriteDefault != nil && *cfg.RewriteDefault

	modelOptions := make([]huh.Option[string], 0, len(llm.KnownModels()))
	for _, m := range llm.KnownModels() {
		modelOptions = append(modelOptions, huh.NewOption(m, m))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("gitmuse Configuration").
				Description("Update your global settings in ~/.gitmuse.json"),

			huh.NewSelect[string]().
				Title("Model").
				Options(modelOptions...).
				Value(&model),

			huh.NewInput().
				Title("API Endpoint").
				Description("OpenAI-compatible chat completions URL").
				Value(&endpoint),

			huh.NewInput().
				Title("API Key Environment Variable").
				Description("Leave empty for endpoints that need no key").
				Value(&keyEnvVar),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Reasoning Effort").
				Options(
					huh.NewOption("none", "none"),
					huh.NewOption("low", "low"),
					huh.NewOption("medium", "medium"),
					huh.NewOption("high", "high"),
				).
				Value(&effort),

			huh.NewSelect[string]().
				Title("Verbosity").
				Options(
					huh.NewOption("low", "low"),
					huh.NewOption("medium", "medium"),
					huh.NewOption("high", "high"),
				).
				Value(&verbosity),

			huh.NewInput().
				Title("Suggestions").
				Description("Commit messages per generation (1-10)").
				Value(&choicesStr).
				Validate(func(s string) error {
					v, err := strconv.Atoi(s)
					if err != nil {
						return err
					}
					if v < 1 || v > 10 {
						return fmt.Errorf("must be between 1 and 10")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Stream Responses").
				Description("Print message text as it is generated").
				Value(&stream),

			huh.NewConfirm().
				Title("Rewrite by Default (jj)").
				Description("Feed the current description to the AI as a hint").
				Value(&rewrite),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println(noticeStyle.Render("Configuration unchanged."))
			return nil
		}
		return err
	}

	cfg.Model = model
	cfg.APIEndpoint = endpoint
	cfg.APIKeyEnvVar = keyEnvVar
	cfg.ReasoningEffort = effort
	cfg.Verbosity = verbosity
	if v, err := strconv.Atoi(choicesStr); err == nil {
		cfg.Choices = &v
	}
	cfg.Stream = &stream
	cfg.RewriteDefault = &rewrite

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Println(successStyle.Render("Configuration saved."))
	return nil
}
