package tokens

import (
	"strings"
	"testing"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

func TestEstimator_CountTurns(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name      string
		turns     []domain.Turn
		minTokens int
		maxTokens int
	}{
		{
			name:      "single turn",
			turns:     []domain.Turn{{Role: domain.TurnUser, Content: "Hello, how are you?"}},
			minTokens: 5,
			maxTokens: 15,
		},
		{
			name: "conversation",
			turns: []domain.Turn{
				{Role: domain.TurnUser, Content: "What is 2+2?"},
				{Role: domain.TurnAssistant, Content: "What do you think?"},
				{Role: domain.TurnUser, Content: "Four"},
			},
			minTokens: 10,
			maxTokens: 30,
		},
		{
			name:      "empty",
			turns:     nil,
			minTokens: 0,
			maxTokens: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CountTurns("any-model", tt.turns)
			if err != nil {
				t.Fatalf("CountTurns() error = %v", err)
			}
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("CountTurns() = %d, want between %d and %d", got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTiktokenCounter_CountText(t *testing.T) {
	c := NewTiktokenCounter()

	tests := []struct {
		model string
		text  string
		want  int
	}{
		{model: "gpt-4o-mini", text: "hello world", want: 2},
		{model: "gpt-4", text: "hello world", want: 2},
		{model: "gpt-4o-mini", text: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.model+"/"+tt.text, func(t *testing.T) {
			got, err := c.CountText(tt.model, tt.text)
			if err != nil {
				t.Fatalf("CountText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CountText() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTiktokenCounter_CountTurns(t *testing.T) {
	c := NewTiktokenCounter()
	turns := []domain.Turn{
		{Role: domain.TurnUser, Content: "hello world"},
		{Role: domain.TurnAssistant, Content: "hello world"},
	}

	got, err := c.CountTurns("gpt-4o-mini", turns)
	if err != nil {
		t.Fatalf("CountTurns() error = %v", err)
	}
	// two turns of 2 tokens, 4 framing each, 3 priming
	if want := 2*(2+tokensPerMessage+tokensPerRole) + assistantPriming; got != want {
		t.Errorf("CountTurns() = %d, want %d", got, want)
	}
}

func TestTiktokenCounter_SupportsModel(t *testing.T) {
	c := NewTiktokenCounter()

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o-mini", true},
		{"GPT-4", true},
		{"o3-mini", true},
		{"gemini-2.0-flash", false},
		{"claude-3-haiku", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := c.SupportsModel(tt.model); got != tt.want {
				t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestRegistry_CountTurns(t *testing.T) {
	r := NewRegistry()
	turns := []domain.Turn{{Role: domain.TurnUser, Content: strings.Repeat("word ", 40)}}

	if _, estimated := r.CountTurns("gpt-4o-mini", turns); estimated {
		t.Error("CountTurns(gpt-4o-mini) estimated = true, want exact count")
	}

	n, estimated := r.CountTurns("gemini-2.0-flash", turns)
	if !estimated {
		t.Error("CountTurns(gemini) estimated = false, want estimate")
	}
	if n == 0 {
		t.Error("CountTurns(gemini) = 0, want non-zero estimate")
	}
}
