package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/logger"
	"ai-character-chat/backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Validation errors for the turn request.
var (
	ErrMissingMessage     = errors.New("missing 'message'")
	ErrMissingCharacterID = errors.New("missing 'id'")
)

// LimitReachedError is the terminal outcome when a character's conversation
// cap is hit. It is an expected state, not a failure.
type LimitReachedError struct {
	CurrentTurnCount int
	MaxTurns         int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("conversation limit reached (%d/%d messages)", e.CurrentTurnCount, e.MaxTurns)
}

// Options are the chat behaviour tunables.
type Options struct {
	// MaxHistoryTurns bounds the generation context window, in turns.
	MaxHistoryTurns int
	// SummarizeInterval is the number of turns between memory compactions.
	SummarizeInterval int
	// MaxTotalTurns is the hard conversation cap, in turns.
	MaxTotalTurns int
}

// TurnResult is the outcome of one successful chat turn.
type TurnResult struct {
	Reply            string
	CurrentTurnCount int
	MaxTurns         int
}

// Profile is the character payload for the profile lookup.
type Profile struct {
	Character        *models.Character
	History          []models.HistoryEntry
	CurrentTurnCount int
	MaxTurns         int
}

// Service orchestrates the conversation turn lifecycle: validation, limit
// check, context assembly, generation, persistence, and the counter-triggered
// memory compaction.
type Service struct {
	characters store.CharacterRepository
	history    store.HistoryRepository
	generator  ai.Generator
	summarizer *Summarizer
	locker     Locker
	metrics    *observability.Metrics
	opts       Options
	log        *logger.Logger
}

func NewService(
	characters store.CharacterRepository,
	history store.HistoryRepository,
	generator ai.Generator,
	summarizer *Summarizer,
	locker Locker,
	metrics *observability.Metrics,
	opts Options,
	log *logger.Logger,
) *Service {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Service{
		characters: characters,
		history:    history,
		generator:  generator,
		summarizer: summarizer,
		locker:     locker,
		metrics:    metrics,
		opts:       opts,
		log:        log,
	}
}

// GetProfile returns a character's display metadata plus the current counts.
// When includeHistory is set, the recent window is included.
func (s *Service) GetProfile(ctx context.Context, characterID string, includeHistory bool) (*Profile, error) {
	if characterID == "" {
		return nil, ErrMissingCharacterID
	}

	character, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		Character:        character,
		CurrentTurnCount: character.TurnCount,
		MaxTurns:         s.opts.MaxTotalTurns * 2,
	}

	if includeHistory {
		history, err := s.history.LoadRecent(ctx, characterID, s.opts.MaxHistoryTurns*2)
		if err != nil {
			return nil, err
		}
		profile.History = history
	}

	return profile, nil
}

// SendMessage runs one chat turn for a character and returns the reply.
//
// Persistence and summarization failures after a successful generation are
// logged and swallowed: the user already has the reply, and durability must
// not erase it.
func (s *Service) SendMessage(ctx context.Context, characterID, message string) (*TurnResult, error) {
	// Validating
	if message == "" {
		return nil, ErrMissingMessage
	}
	if characterID == "" {
		return nil, ErrMissingCharacterID
	}

	log := s.log.WithCharacterID(characterID)

	release, acquired := s.locker.TryAcquire(ctx, characterID)
	defer release()
	if !acquired {
		// A concurrent turn for the same character is in flight. Proceeding
		// can overshoot the cap by a turn; that tolerance is accepted rather
		// than failing the request.
		log.Warn("Turn lease busy, proceeding without serialization")
	}

	character, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}

	// LimitCheck: hard cap, checked before any generation or store write.
	if character.TurnNumber() >= s.opts.MaxTotalTurns {
		return nil, &LimitReachedError{
			CurrentTurnCount: character.TurnCount,
			MaxTurns:         s.opts.MaxTotalTurns * 2,
		}
	}

	// ContextBuild. A history read failure degrades to an empty window
	// instead of failing the turn; the reply just loses its context.
	history, err := s.history.LoadRecent(ctx, characterID, s.opts.MaxHistoryTurns*2)
	if err != nil {
		log.WithStage("context").LogError(err, "Failed to load history, continuing with empty window")
		history = nil
	}
	instruction, turnHistory := BuildContext(character, history)

	// Generating. Any generation failure aborts the turn with nothing
	// persisted, so no orphaned user-only turns are written on this path.
	start := time.Now()
	outcome, err := s.generator.Converse(ctx, instruction, turnHistory, message)
	if s.metrics != nil {
		s.metrics.GenerationSeconds.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("op", "converse")))
	}
	if err != nil {
		return nil, err
	}
	replyText := outcome.FallbackText()

	// Persisting. Failure is logged, not surfaced: availability over
	// durability once the reply exists. The counter falls back to the
	// pre-call value.
	newCount := character.TurnCount
	if count, err := s.history.AppendPair(ctx, characterID, message, replyText); err != nil {
		log.WithStage("persist").LogError(err, "Failed to save conversation turn")
	} else {
		newCount = count
	}
	if s.metrics != nil {
		s.metrics.Turns.Add(ctx, 1)
	}

	// SummaryCheck: synchronous, in-line, and never affects the response.
	turnNumber := newCount / 2
	if turnNumber > 0 && turnNumber%s.opts.SummarizeInterval == 0 {
		log.Info("Summarization triggered", "turn", turnNumber)
		if s.metrics != nil {
			s.metrics.Summarizations.Add(ctx, 1)
		}
		if err := s.summarizer.Run(ctx, characterID); err != nil {
			log.WithStage("summarize").LogError(err, "Summarization failed")
		}
	}

	return &TurnResult{
		Reply:            replyText,
		CurrentTurnCount: newCount,
		MaxTurns:         s.opts.MaxTotalTurns * 2,
	}, nil
}
