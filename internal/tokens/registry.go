// Package tokens counts prompt tokens so oversized prompts can be rejected
// before they reach a provider.
package tokens

import (
	"strings"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

// Counter counts the prompt tokens of a list of turns for one model family.
type Counter interface {
	CountTurns(model string, turns []domain.Turn) (int, error)
	SupportsModel(model string) bool
}

// Registry picks the first registered counter that supports a model and
// falls back to an estimate for everything else.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered.
func NewRegistry() *Registry {
	return &Registry{
		counters: []Counter{NewTiktokenCounter()},
		fallback: NewEstimator(),
	}
}

// Register adds a counter ahead of the fallback.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// CountTurns counts turns with the counter for model. A counter failure
// falls back to the estimate.
func (r *Registry) CountTurns(model string, turns []domain.Turn) (int, bool) {
	for _, c := range r.counters {
		if !c.SupportsModel(model) {
			continue
		}
		if n, err := c.CountTurns(model, turns); err == nil {
			return n, false
		}
		break
	}
	n, _ := r.fallback.CountTurns(model, turns)
	return n, true
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountTurns estimates the token count.
func (e *Estimator) CountTurns(_ string, turns []domain.Turn) (int, error) {
	chars := 0
	for _, t := range turns {
		chars += len(t.Role) + len(t.Content)
		chars += 4 // role tokens + separators
	}
	return int(float64(chars) / e.CharsPerToken), nil
}

// SupportsModel returns true; the estimator is the catch-all.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher matches model names by exact name or prefix.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
