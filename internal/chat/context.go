package chat

import (
	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/models"
)

// memoryBlockLabel introduces the compacted memory inside the system
// instruction sent to the model.
const memoryBlockLabel = "[memory]"

// BuildContext assembles the generation input for a character: the system
// instruction (base prompt plus the labeled memory block when memory exists)
// and the history window mapped 1:1 to the generation call's shape.
//
// No truncation happens here; the window was already bounded by the store.
func BuildContext(character *models.Character, history []models.HistoryEntry) (string, []ai.TurnMessage) {
	instruction := character.EffectiveSystemPrompt()
	if character.MemoryPrompt != "" {
		instruction = instruction + "\n\n" + memoryBlockLabel + "\n" + character.MemoryPrompt
	}

	messages := make([]ai.TurnMessage, 0, len(history))
	for _, entry := range history {
		messages = append(messages, ai.TurnMessage{
			Role: entry.Role,
			Text: entry.Message,
		})
	}

	return instruction, messages
}
