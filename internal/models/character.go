package models

import (
	"time"
)

// DefaultSystemPrompt is used when a character row has no system prompt set.
const DefaultSystemPrompt = "You are a helpful assistant."

// Character represents a chat persona plus its accumulated conversation state.
// Records are provisioned out of band; the request path only reads them,
// except for MemoryPrompt and TurnCount which are updated by the chat services.
type Character struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name"`
	IconURL      string    `json:"iconUrl"`
	ProfileText  string    `json:"profileText"`
	SystemPrompt string    `json:"-"`
	MemoryPrompt string    `json:"-"`
	// TurnCount counts messages, not turns: one user message plus one model
	// reply adds 2. Incremented only via the store's atomic append.
	TurnCount int       `json:"-" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveSystemPrompt returns the character's system prompt, falling back
// to the generic assistant prompt when the column is empty.
func (c *Character) EffectiveSystemPrompt() string {
	if c.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return c.SystemPrompt
}

// TurnNumber converts the message counter into completed turns.
func (c *Character) TurnNumber() int {
	return c.TurnCount / 2
}
