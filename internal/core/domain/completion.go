package domain

// SamplingParams are the fixed generation settings for a model call.
type SamplingParams struct {
	N           int     `json:"n"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultSampling returns a single low-randomness completion capped at 1000
// output tokens.
func DefaultSampling() SamplingParams {
	return SamplingParams{
		N:           1,
		Temperature: 0.25,
		MaxTokens:   1000,
	}
}

// CompletionRequest is the canonical request sent to a model provider.
type CompletionRequest struct {
	Model    string
	Messages []Turn
	Sampling SamplingParams
}

// FinishReason values reported by providers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompletionResponse is the canonical provider reply.
type CompletionResponse struct {
	Text         string
	FinishReason string
	Model        string
	Usage        Usage
}
