package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"gitmuse/internal/llm"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	messageStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2).
			MarginBottom(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// TerminalPrompter implements Prompter with huh forms.
type TerminalPrompter struct{}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// SelectFiles implements budget.FileSelector for the narrowing loop.
func (t *TerminalPrompter) SelectFiles(ctx context.Context, files []string, tokens, budget int) ([]string, error) {
	fmt.Println(warnStyle.Render("The diff is too large.") + " " +
		dimStyle.Render(fmt.Sprintf("~%d tokens against a budget of %d.", tokens, budget)))

	options := make([]huh.Option[string], len(files))
	for i, f := range files {
		options[i] = huh.NewOption(f, f)
	}

	var selected []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select the files to include in the diff").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return nil, err
	}
	return selected, nil
}

func (t *TerminalPrompter) ChooseCandidate(cands []llm.Candidate) (llm.Candidate, bool, error) {
	if len(cands) == 1 {
		t.showMessage(cands[0].Message())
		return cands[0], true, nil
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Generated Commit Messages:"))
	for _, c := range cands {
		fmt.Println(dimStyle.Render(fmt.Sprintf("[%d] %s", c.Index, strings.Repeat("=", 40))))
		fmt.Println(messageStyle.Render(c.Message()))
	}

	options := make([]huh.Option[int], len(cands))
	for i, c := range cands {
		options[i] = huh.NewOption(fmt.Sprintf("[%d] %s", c.Index, c.Subject), i)
	}

	var idx int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which commit message do you want to use?").
				Options(options...).
				Value(&idx),
		),
	)
	if err := form.Run(); err != nil {
		if isUserAbort(err) {
			return llm.Candidate{}, false, nil
		}
		return llm.Candidate{}, false, err
	}
	return cands[idx], true, nil
}

func (t *TerminalPrompter) NextAction(message string) (Action, error) {
	for {
		var selected string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("What would you like to do?").
					Options(
						huh.NewOption("Commit it", "commit"),
						huh.NewOption("Edit it & commit", "edit"),
						huh.NewOption("Revise with AI", "revise"),
						huh.NewOption("Copy to clipboard", "copy"),
						huh.NewOption("Abort", "abort"),
					).
					Value(&selected),
			),
		)
		if err := form.Run(); err != nil {
			if isUserAbort(err) {
				return ActionAbort, nil
			}
			return ActionAbort, err
		}

		switch selected {
		case "commit":
			return ActionCommit, nil
		case "edit":
			return ActionEdit, nil
		case "revise":
			return ActionRevise, nil
		case "copy":
			// Side action: stays in the same presentation round.
			if err := clipboard.WriteAll(message); err != nil {
				fmt.Println(warnStyle.Render("Could not copy to clipboard: " + err.Error()))
				continue
			}
			fmt.Println(dimStyle.Render("Message copied to clipboard."))
			continue
		default:
			return ActionAbort, nil
		}
	}
}

func (t *TerminalPrompter) EditMessage(current string) (string, error) {
	content := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Edit Commit Message").
				Description("Modify the message below").
				Value(&content),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	t.showMessage(content)
	return content, nil
}

func (t *TerminalPrompter) ReviseInstruction() (string, error) {
	var instruction string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Revise").
				Description("Tell the AI how to change the message").
				Value(&instruction),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return instruction, nil
}

func (t *TerminalPrompter) RetryCommit(commitErr error) (bool, error) {
	fmt.Println(warnStyle.Render("Commit failed:"))
	fmt.Println(dimStyle.Render(commitErr.Error()))

	retry := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Retry the commit with the same message?").
				Affirmative("Retry").
				Negative("Back to messages").
				Value(&retry),
		),
	)
	if err := form.Run(); err != nil {
		if isUserAbort(err) {
			return false, nil
		}
		return false, err
	}
	return retry, nil
}

func (t *TerminalPrompter) showMessage(message string) {
	fmt.Println()
	fmt.Println(headerStyle.Render("Commit Message:"))
	fmt.Println(messageStyle.Render(strings.TrimSpace(message)))
}

func isUserAbort(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}
