package domain

import "time"

// TurnRole is the speaker of one message.
type TurnRole string

const (
	TurnSystem    TurnRole = "system"
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    TurnRole `db:"role" json:"role"`
	Content string   `db:"content" json:"content"`
}

// Conversation is a persisted tutoring dialogue. Only user and assistant turns
// are ever stored; prompt scaffolding is rebuilt for each model call.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	TenantID  int64     `db:"tenant_id" json:"tenant_id,omitempty"`
	Topic     string    `db:"topic" json:"topic"`
	Context   string    `db:"context" json:"context,omitempty"`
	Turns     []Turn    `db:"-" json:"turns"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ConversationSummary is a listing row for history and admin views.
type ConversationSummary struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	OwnerName string    `db:"owner_name" json:"owner_name"`
	TenantID  int64     `db:"tenant_id" json:"tenant_id,omitempty"`
	Topic     string    `db:"topic" json:"topic"`
	UserTurns int       `db:"user_turns" json:"user_turns"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CountUserTurns returns the number of user turns in turns.
func CountUserTurns(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == TurnUser {
			n++
		}
	}
	return n
}
