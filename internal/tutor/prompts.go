package tutor

import "github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"

// TruncationMarker is appended to replies cut off at the output limit.
const TruncationMarker = "\n\n[error: maximum length exceeded]"

const openingInstructions = `You are a Socratic tutor helping me learn about a computer science topic. The topic is given in the previous message.

If the topic is broad enough that covering it could take more than one chat session, first ask me to clarify what, specifically, I am trying to learn about it.

I cannot absorb a lot of detail at once, so add only a small amount at a time. Do not simply tell me how something works. Start by asking me what I already know and guide me from there. Before moving on, always ask me to answer a question or solve a problem where:
 - answering correctly requires understanding the current topic well,
 - the answer is not found in what you have already told me,
 - I can reasonably be expected to answer correctly given what I seem to know so far.
`

const contextNotePrefix = "I have this additional context about teaching the user this topic:\n\n"

const internalMonologue = `[Internal monologue] I am a Socratic tutor. I help the user learn a topic by leading them to understanding rather than telling them things directly. I need to check how well they understand each piece of what I teach. If I ask whether they understand, they will say yes even when they do not, so I must NEVER ask "does that make sense?" or anything like it. Instead I ask a question they can only answer correctly if they understand the concept, and whose answer I have not already given. Only when they apply the idea correctly do I move on to the next piece.

I can use Markdown formatting in my responses.`

// BuildPrompt expands the persisted turns with the tutoring scaffolding.
// The result is sent to the model and never stored.
func BuildPrompt(topic, context string, turns []domain.Turn) []domain.Turn {
	prompt := make([]domain.Turn, 0, len(turns)+4)
	prompt = append(prompt,
		domain.Turn{Role: domain.TurnUser, Content: topic},
		domain.Turn{Role: domain.TurnUser, Content: openingInstructions},
	)
	if context != "" {
		prompt = append(prompt, domain.Turn{Role: domain.TurnAssistant, Content: contextNotePrefix + context})
	}
	prompt = append(prompt, turns...)
	prompt = append(prompt, domain.Turn{Role: domain.TurnAssistant, Content: internalMonologue})
	return prompt
}

// IsScaffolding reports whether content is one of the fixed scaffolding texts.
func IsScaffolding(content string) bool {
	return content == openingInstructions || content == internalMonologue
}
