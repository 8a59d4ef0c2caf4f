package chat

import (
	"context"
	"fmt"
	"strings"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/logger"
)

// summaryPromptTemplate asks the model to extract user traits from a
// transcript into labeled sections. Speculation beyond the transcript is
// explicitly forbidden so the memory stays grounded in what was said.
const summaryPromptTemplate = `Based only on the conversation transcript below, extract what is known about the user talking to the AI. Write concise bullet points under these labeled sections:

Preferences:
Dislikes:
Tone and personality:
Notable episodes:

Do not invent or speculate about anything that does not appear in the transcript. If a section has no evidence, leave it empty.

[transcript]
%s

[summary]`

// Summarizer compacts a recent history window into the character's memory
// prompt via a second generation call.
type Summarizer struct {
	characters store.CharacterRepository
	history    store.HistoryRepository
	generator  ai.Generator
	// interval is the number of turns between compactions; the summarized
	// window is twice that many messages.
	interval int
	log      *logger.Logger
}

func NewSummarizer(
	characters store.CharacterRepository,
	history store.HistoryRepository,
	generator ai.Generator,
	interval int,
	log *logger.Logger,
) *Summarizer {
	return &Summarizer{
		characters: characters,
		history:    history,
		generator:  generator,
		interval:   interval,
		log:        log.WithStage("summarize"),
	}
}

// Run summarizes the character's recent history and overwrites the stored
// memory prompt. Blocked or empty generation results leave the memory
// untouched.
func (s *Summarizer) Run(ctx context.Context, characterID string) error {
	entries, err := s.history.LoadRecent(ctx, characterID, s.interval*2)
	if err != nil {
		return fmt.Errorf("loading history to summarize: %w", err)
	}

	var lines []string
	for _, entry := range entries {
		lines = append(lines, entry.Role+": "+entry.Message)
	}
	transcript := strings.Join(lines, "\n")
	if transcript == "" {
		s.log.Info("Nothing to summarize", "character_id", characterID)
		return nil
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, transcript)

	outcome, err := s.generator.Summarize(ctx, prompt)
	if err != nil {
		return fmt.Errorf("summary generation: %w", err)
	}
	if outcome.Kind != ai.OutcomeReply {
		s.log.Warn("Summarization produced no usable text",
			"character_id", characterID,
			"blocked", outcome.Kind == ai.OutcomeBlocked,
			"reason", outcome.Reason,
		)
		return nil
	}

	summary := strings.TrimSpace(outcome.Text)
	if summary == "" {
		s.log.Warn("Summarization returned empty text", "character_id", characterID)
		return nil
	}

	// Each compaction replaces the previous memory in full.
	if err := s.characters.UpdateMemory(ctx, characterID, summary); err != nil {
		return fmt.Errorf("writing memory: %w", err)
	}

	s.log.Info("Memory updated", "character_id", characterID, "summary_len", len(summary))
	return nil
}
