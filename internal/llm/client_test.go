package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(url string) *Client {
	c := NewClient(url, "test-key")
	c.backoff = time.Millisecond
	return c
}

func specN(n int) RequestSpec {
	return RequestSpec{Model: "gpt-5.1", ReasoningEffort: EffortLow, Verbosity: VerbosityMedium, ChoiceCount: n}
}

func choicesJSON(contents ...string) []byte {
	type choice struct {
		Index   int `json:"index"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	var resp struct {
		Choices []choice `json:"choices"`
	}
	for i, c := range contents {
		ch := choice{Index: i}
		ch.Message.Content = c
		resp.Choices = append(resp.Choices, ch)
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestGenerateThreeChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or wrong Authorization header")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.N != 3 {
			t.Errorf("n = %d, want 3", req.N)
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("first message role = %q, want system", req.Messages[0].Role)
		}
		w.Write(choicesJSON(
			"feat: add greeting function",
			"feat(cli): introduce greeting\n\nUsers asked for a friendlier start.",
			"chore: wire up greeting",
		))
	}))
	defer server.Close()

	cands, err := testClient(server.URL).Generate(context.Background(), "diff text", nil, specN(3), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	for i, c := range cands {
		if c.Subject == "" {
			t.Errorf("candidate %d has empty subject", i)
		}
		if c.Index != i {
			t.Errorf("candidate %d has index %d", i, c.Index)
		}
	}
	if cands[1].Body != "Users asked for a friendlier start." {
		t.Errorf("body = %q", cands[1].Body)
	}
}

func TestReviseSingleChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.N != 1 {
			t.Errorf("revise n = %d, want 1", req.N)
		}
		var sawPrior, sawInstruction bool
		for _, m := range req.Messages {
			if m.Role == "assistant" && strings.Contains(m.Content, "feat: old subject") {
				sawPrior = true
			}
			if m.Role == "user" && m.Content == "mention the config change" {
				sawInstruction = true
			}
		}
		if !sawPrior || !sawInstruction {
			t.Errorf("revise request missing prior candidate or instruction: %+v", req.Messages)
		}
		w.Write(choicesJSON("feat: old subject with config change"))
	}))
	defer server.Close()

	prior := Candidate{Index: 0, Subject: "feat: old subject", Raw: "feat: old subject"}
	cands, err := testClient(server.URL).Revise(context.Background(), "diff", prior, "mention the config change", specN(3), nil)
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
}

func TestAuthErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Generate(context.Background(), "diff", nil, specN(1), nil)
	var ae *AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthenticationError", err)
	}
	if ae.Status != 401 {
		t.Errorf("Status = %d, want 401", ae.Status)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (auth failures are final)", attempts)
	}
}

func TestInvalidRequestCarriesParam(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unsupported value","type":"invalid_request_error","param":"reasoning_effort"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Generate(context.Background(), "diff", nil, specN(1), nil)
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidRequestError", err)
	}
	if ire.Param != "reasoning_effort" {
		t.Errorf("Param = %q, want reasoning_effort", ire.Param)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRateLimitRetriedOnce(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
			return
		}
		w.Write(choicesJSON("fix: handle retry"))
	}))
	defer server.Close()

	cands, err := testClient(server.URL).Generate(context.Background(), "diff", nil, specN(1), nil)
	if err != nil {
		t.Fatalf("Generate after one 429: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if cands[0].Subject != "fix: handle retry" {
		t.Errorf("subject = %q", cands[0].Subject)
	}
}

func TestSecondRateLimitSurfaced(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("still busy"))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Generate(context.Background(), "diff", nil, specN(1), nil)
	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one retry after backoff)", attempts)
	}
}

func TestMalformedResponseNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Generate(context.Background(), "diff", nil, specN(1), nil)
	if err == nil {
		t.Fatal("expected an error for a non-JSON body")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (a garbage body will not improve on retry)", attempts)
	}
}

func TestStreamingAssemblesCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"feat: add \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":1,\"delta\":{\"content\":\"fix: correct \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"greeting\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":1,\"delta\":{\"content\":\"farewell\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	spec := specN(2)
	spec.Stream = true

	var fragments []string
	cands, err := testClient(server.URL).Generate(context.Background(), "diff", nil, spec, func(choice int, fragment string) {
		fragments = append(fragments, fmt.Sprintf("%d:%s", choice, fragment))
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Subject != "feat: add greeting" {
		t.Errorf("candidate 0 = %q", cands[0].Subject)
	}
	if cands[1].Subject != "fix: correct farewell" {
		t.Errorf("candidate 1 = %q", cands[1].Subject)
	}
	want := []string{"0:feat: add ", "1:fix: correct ", "0:greeting", "1:farewell"}
	if len(fragments) != len(want) {
		t.Fatalf("fragments = %v, want %v", fragments, want)
	}
	for i := range want {
		if fragments[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q (arrival order)", i, fragments[i], want[i])
		}
	}
}

func TestInterruptedStreamReturnsNoCandidates(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "text/event-stream")
		// Partial output, then the connection drops without [DONE].
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"feat: half a \"}}]}\n\n")
	}))
	defer server.Close()

	spec := specN(1)
	spec.Stream = true

	cands, err := testClient(server.URL).Generate(context.Background(), "diff", nil, spec, nil)
	if !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("err = %v, want ErrIncompleteStream", err)
	}
	if cands != nil {
		t.Errorf("candidates = %v, want nil (never partial)", cands)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one network-level retry)", attempts)
	}
}

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      RequestSpec
		wantParam string
	}{
		{"ok", RequestSpec{Model: "gpt-5.1", ReasoningEffort: EffortNone, Verbosity: VerbosityLow, ChoiceCount: 3}, ""},
		{"unknown model", RequestSpec{Model: "gpt-4o", ChoiceCount: 1}, "model"},
		{"multi choice on single-completion model", RequestSpec{Model: "gpt-5.1-codex-mini", ChoiceCount: 3}, "n"},
		{"zero choices", RequestSpec{Model: "gpt-5.1", ChoiceCount: 0}, "n"},
		{"effort none on codex", RequestSpec{Model: "gpt-5.1-codex", ReasoningEffort: EffortNone, ChoiceCount: 1}, "reasoning_effort"},
		{"verbosity on codex-mini", RequestSpec{Model: "gpt-5.1-codex-mini", Verbosity: VerbosityHigh, ChoiceCount: 1}, "verbosity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("ValidateSpec: %v", err)
				}
				return
			}
			var upe *UnsupportedParameterError
			if !errors.As(err, &upe) {
				t.Fatalf("err = %v, want UnsupportedParameterError", err)
			}
			if upe.Parameter != tt.wantParam {
				t.Errorf("Parameter = %q, want %q", upe.Parameter, tt.wantParam)
			}
		})
	}
}

func TestValidationHappensBeforeRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	spec := RequestSpec{Model: "gpt-5.1-codex-mini", ChoiceCount: 3}
	_, err := testClient(server.URL).Generate(context.Background(), "diff", nil, spec, nil)
	var upe *UnsupportedParameterError
	if !errors.As(err, &upe) {
		t.Fatalf("err = %v, want UnsupportedParameterError", err)
	}
	if called {
		t.Error("pre-flight validation reached the server")
	}
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject string
		body    string
	}{
		{"subject only", "feat: add greeting\n", "feat: add greeting", ""},
		{"subject and body", "fix: race in watcher\n\nThe watcher could fire twice.", "fix: race in watcher", "The watcher could fire twice."},
		{"think block stripped", "<think>hmm, a fix</think>\nfix: quiet logs", "fix: quiet logs", ""},
		{"code fence stripped", "```\nchore: bump deps\n```", "chore: bump deps", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCandidate(0, tt.raw)
			if c.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", c.Subject, tt.subject)
			}
			if c.Body != tt.body {
				t.Errorf("Body = %q, want %q", c.Body, tt.body)
			}
			if c.Raw != tt.raw {
				t.Errorf("Raw was modified")
			}
		})
	}
}

func TestCandidateMessage(t *testing.T) {
	c := Candidate{Subject: "feat: x", Body: "why"}
	if got := c.Message(); got != "feat: x\n\nwhy" {
		t.Errorf("Message = %q", got)
	}
	c.Body = ""
	if got := c.Message(); got != "feat: x" {
		t.Errorf("Message = %q", got)
	}
}
