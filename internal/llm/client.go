// Package llm turns a change set diff into conventional-commit
// candidates by calling an OpenAI-compatible chat-completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const rateLimitBackoff = 2 * time.Second

// DeltaFunc receives streamed text fragments in arrival order. choice
// identifies which of the n completions the fragment belongs to.
type DeltaFunc func(choice int, fragment string)

// Client speaks the chat-completion protocol to one endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	backoff  time.Duration
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 120 * time.Second},
		backoff:  rateLimitBackoff,
	}
}

type chatRequest struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	N               int       `json:"n"`
	Stream          bool      `json:"stream"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
	Verbosity       string    `json:"verbosity,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate requests spec.ChoiceCount independent commit message
// completions for the given diff. extra carries optional additional
// user context (e.g. a rewrite hint). onDelta may be nil.
func (c *Client) Generate(ctx context.Context, diff string, extra []Message, spec RequestSpec, onDelta DeltaFunc) ([]Candidate, error) {
	msgs := make([]Message, 0, 2+len(extra))
	msgs = append(msgs, System(SystemPrompt))
	msgs = append(msgs, extra...)
	msgs = append(msgs, User(diff))
	return c.complete(ctx, msgs, spec, onDelta)
}

// Revise asks for exactly one refinement of a previously chosen
// candidate, steered by the user's free-text instruction.
func (c *Client) Revise(ctx context.Context, diff string, prior Candidate, instruction string, spec RequestSpec, onDelta DeltaFunc) ([]Candidate, error) {
	msgs := []Message{
		System(SystemPrompt),
		User(diff),
		Assistant(prior.Message()),
		User(instruction),
	}
	spec.ChoiceCount = 1
	return c.complete(ctx, msgs, spec, onDelta)
}

type rateLimit429 struct {
	body string
}

func (e *rateLimit429) Error() string { return "HTTP 429: " + e.body }

// errMalformedResponse marks a 200 body that failed to parse. A server
// returning garbage will return the same garbage again, so this is
// never retried.
var errMalformedResponse = errors.New("malformed response body")

func (c *Client) complete(ctx context.Context, msgs []Message, spec RequestSpec, onDelta DeltaFunc) ([]Candidate, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(chatRequest{
		Model:           spec.Model,
		Messages:        msgs,
		N:               spec.ChoiceCount,
		Stream:          spec.Stream,
		ReasoningEffort: string(spec.ReasoningEffort),
		Verbosity:       string(spec.Verbosity),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var retriedNetwork, retriedRateLimit bool
	for {
		cands, err := c.do(ctx, payload, spec, onDelta)
		if err == nil {
			return cands, nil
		}

		var rl *rateLimit429
		switch {
		case errors.As(err, &rl):
			if retriedRateLimit {
				return nil, &RateLimitedError{Body: rl.body}
			}
			retriedRateLimit = true
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		case isRetryableNetwork(err):
			if retriedNetwork {
				return nil, err
			}
			retriedNetwork = true
		default:
			return nil, err
		}
	}
}

// isRetryableNetwork matches transient transport failures: connection
// resets, timeouts and streams cut off mid-flight. Typed API errors
// and context cancellation are final.
func isRetryableNetwork(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrIncompleteStream) {
		return true
	}
	if errors.Is(err, errMalformedResponse) {
		return false
	}
	var (
		authErr    *AuthenticationError
		invalidErr *InvalidRequestError
		apiErr     *APIError
	)
	if errors.As(err, &authErr) || errors.As(err, &invalidErr) || errors.As(err, &apiErr) {
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, payload []byte, spec RequestSpec, onDelta DeltaFunc) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, classifyStatus(resp.StatusCode, body)
	}

	if spec.Stream {
		return readStream(resp.Body, spec.ChoiceCount, onDelta)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %v: %w", err, errMalformedResponse)
	}
	if len(out.Choices) == 0 {
		return nil, &APIError{Status: resp.StatusCode, Body: "no choices in response"}
	}

	cands := make([]Candidate, 0, len(out.Choices))
	for i, choice := range out.Choices {
		idx := choice.Index
		if idx == 0 && i > 0 {
			// Some compatible servers omit the index field.
			idx = i
		}
		cands = append(cands, ParseCandidate(idx, choice.Message.Content))
	}
	return cands, nil
}

func classifyStatus(status int, body []byte) error {
	text := string(bytes.TrimSpace(body))
	switch status {
	case http.StatusTooManyRequests:
		return &rateLimit429{body: text}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{Status: status, Body: text}
	case http.StatusBadRequest:
		var parsed apiErrorBody
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
			return &InvalidRequestError{Message: parsed.Error.Message, Param: parsed.Error.Param}
		}
		return &InvalidRequestError{Message: text}
	default:
		return &APIError{Status: status, Body: text}
	}
}
