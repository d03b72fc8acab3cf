package llm

import "strings"

// Message is one chat-completion turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: "system", Content: content} }
func User(content string) Message      { return Message{Role: "user", Content: content} }
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// SystemPrompt is the fixed instruction describing the conventional
// commit format the model must produce.
const SystemPrompt = `You are a specialized AI that generates high-quality conventional commit messages from version control diffs. Your ONLY purpose is to produce properly formatted commits that follow the specification at conventionalcommits.org.

# INPUTS
- You will receive a diff of the pending changes
- You MAY also receive a line starting with "Current description:" containing the user's own summary or hint
- Additional user messages may request edits or add requirements

# OUTPUT FORMAT (MANDATORY)
- Respond with the commit message only: a subject line, then optionally a blank line and a body paragraph
- Never include Markdown fences, bullet lists, or explanatory prose around the message

# COMMIT RULES
1. Types: feat, fix, docs, style, refactor, test, build, ci, chore
2. Scope: optional noun in parentheses describing the impacted area
3. Breaking changes: add '!' before the colon or a BREAKING CHANGE: footer
4. Subject: imperative, lowercase start, no trailing period, focused on intent
5. Body (when present): single paragraph explaining WHY the change exists, separated from the subject by a blank line; never re-list the code changes
6. Trust the "Current description" hint unless it contradicts the diff; rephrase it into proper conventional commit style while preserving the intent

# ADDITIONAL INSTRUCTIONS
- Prioritize the motivation behind the change over what code was touched
- Respect user edits and revision requests exactly
- Never explain your reasoning back to the user; output the commit message only`

// Candidate is one AI-proposed commit message.
type Candidate struct {
	Index   int
	Subject string
	Body    string
	Raw     string
}

// Message returns the full commit message text.
func (c Candidate) Message() string {
	if c.Body == "" {
		return c.Subject
	}
	return c.Subject + "\n\n" + c.Body
}

// ParseCandidate splits raw completion text into subject and body.
// Reasoning-model <think> blocks and code fences are stripped first.
func ParseCandidate(index int, raw string) Candidate {
	text := stripThinkBlock(raw)
	text = stripCodeFence(text)
	text = strings.TrimSpace(text)

	subject := text
	body := ""
	if i := strings.Index(text, "\n"); i >= 0 {
		subject = strings.TrimSpace(text[:i])
		body = strings.TrimSpace(text[i+1:])
	}
	return Candidate{Index: index, Subject: subject, Body: body, Raw: raw}
}

func stripThinkBlock(s string) string {
	start := strings.Index(s, "<think>")
	if start < 0 {
		return s
	}
	end := strings.Index(s, "</think>")
	if end < 0 {
		return s
	}
	return s[:start] + s[end+len("</think>"):]
}

func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	// Drop an optional language tag on the fence line.
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return t
}
