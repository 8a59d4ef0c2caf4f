package chat

import (
	"testing"

	"ai-character-chat/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildContextWithoutMemory(t *testing.T) {
	character := &models.Character{
		ID:           "c1",
		SystemPrompt: "You are a pirate.",
	}

	instruction, history := BuildContext(character, nil)

	assert.Equal(t, "You are a pirate.", instruction)
	assert.Empty(t, history)
}

func TestBuildContextAppendsMemoryBlock(t *testing.T) {
	character := &models.Character{
		ID:           "c1",
		SystemPrompt: "You are a pirate.",
		MemoryPrompt: "The user likes ships.",
	}

	instruction, _ := BuildContext(character, nil)

	assert.Equal(t, "You are a pirate.\n\n[memory]\nThe user likes ships.", instruction)
}

func TestBuildContextDefaultsSystemPrompt(t *testing.T) {
	character := &models.Character{ID: "c1"}

	instruction, _ := BuildContext(character, nil)

	assert.Equal(t, models.DefaultSystemPrompt, instruction)
}

func TestBuildContextMapsHistoryInOrder(t *testing.T) {
	character := &models.Character{ID: "c1", SystemPrompt: "prompt"}
	entries := []models.HistoryEntry{
		{Role: models.RoleUser, Message: "hello"},
		{Role: models.RoleModel, Message: "ahoy"},
	}

	_, history := BuildContext(character, entries)

	assert.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, models.RoleModel, history[1].Role)
	assert.Equal(t, "ahoy", history[1].Text)
}
