package llm

import (
	"fmt"
	"strings"
)

// Effort is the model's reasoning-effort request parameter.
type Effort string

const (
	EffortNone   Effort = "none"
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Verbosity controls how much output detail the model produces.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// RequestSpec is immutable per generation call; it is derived from
// config and flags before the review loop starts.
type RequestSpec struct {
	Model           string
	ReasoningEffort Effort
	Verbosity       Verbosity
	ChoiceCount     int
	Stream          bool
}

// capability describes what a model accepts.
type capability struct {
	contextTokens int
	maxChoices    int
	efforts       []Effort
	verbosity     bool
}

var models = map[string]capability{
	"gpt-5.1": {
		contextTokens: 200000,
		maxChoices:    10,
		efforts:       []Effort{EffortNone, EffortLow, EffortMedium, EffortHigh},
		verbosity:     true,
	},
	"gpt-5.1-codex": {
		contextTokens: 200000,
		maxChoices:    10,
		efforts:       []Effort{EffortLow, EffortMedium, EffortHigh},
		verbosity:     true,
	},
	"gpt-5.1-codex-mini": {
		contextTokens: 128000,
		maxChoices:    1,
		efforts:       []Effort{EffortLow, EffortMedium, EffortHigh},
		verbosity:     false,
	},
}

// KnownModels lists the accepted model identifiers.
func KnownModels() []string {
	return []string{"gpt-5.1", "gpt-5.1-codex", "gpt-5.1-codex-mini"}
}

// ContextTokens returns the model's context window, or a conservative
// default for unknown identifiers.
func ContextTokens(model string) int {
	if c, ok := models[model]; ok {
		return c.contextTokens
	}
	return 128000
}

// ValidateModel rejects identifiers outside the supported set.
func ValidateModel(model string) error {
	if _, ok := models[model]; !ok {
		return fmt.Errorf("invalid model %q; supported models: %s", model, strings.Join(KnownModels(), ", "))
	}
	return nil
}

// ValidateSpec is the local pre-flight check: it rejects parameter
// combinations the target model cannot honor before any request is
// built.
func ValidateSpec(spec RequestSpec) error {
	c, ok := models[spec.Model]
	if !ok {
		return &UnsupportedParameterError{
			Parameter: "model",
			Model:     spec.Model,
			Detail:    fmt.Sprintf("unknown model; supported: %s", strings.Join(KnownModels(), ", ")),
		}
	}
	if spec.ChoiceCount < 1 {
		return &UnsupportedParameterError{
			Parameter: "n",
			Model:     spec.Model,
			Detail:    "choice count must be at least 1",
		}
	}
	if spec.ChoiceCount > c.maxChoices {
		return &UnsupportedParameterError{
			Parameter: "n",
			Model:     spec.Model,
			Detail:    fmt.Sprintf("at most %d completions per request", c.maxChoices),
		}
	}
	if spec.ReasoningEffort != "" && !containsEffort(c.efforts, spec.ReasoningEffort) {
		return &UnsupportedParameterError{
			Parameter: "reasoning_effort",
			Model:     spec.Model,
			Detail:    fmt.Sprintf("%q is not accepted; valid values: %s", spec.ReasoningEffort, effortList(c.efforts)),
		}
	}
	if spec.Verbosity != "" && !c.verbosity {
		return &UnsupportedParameterError{
			Parameter: "verbosity",
			Model:     spec.Model,
			Detail:    "this model ignores the verbosity parameter",
		}
	}
	return nil
}

func containsEffort(efforts []Effort, e Effort) bool {
	for _, v := range efforts {
		if v == e {
			return true
		}
	}
	return false
}

func effortList(efforts []Effort) string {
	parts := make([]string, len(efforts))
	for i, e := range efforts {
		parts[i] = string(e)
	}
	return strings.Join(parts, ", ")
}
