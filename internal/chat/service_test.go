package chat

import (
	"context"
	"errors"
	"io"
	"testing"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements both repository interfaces in memory so turn counts
// stay consistent between the limit check and the append.
type fakeStore struct {
	characters map[string]*models.Character
	entries    []models.HistoryEntry
	appendErr  error
	loadErr    error

	appendCalls int
	memory      map[string]string
}

func newFakeStore(characters ...*models.Character) *fakeStore {
	s := &fakeStore{
		characters: make(map[string]*models.Character),
		memory:     make(map[string]string),
	}
	for _, c := range characters {
		s.characters[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*models.Character, error) {
	character, ok := s.characters[id]
	if !ok {
		return nil, store.ErrCharacterNotFound
	}
	copied := *character
	return &copied, nil
}

func (s *fakeStore) Create(ctx context.Context, character *models.Character) error {
	s.characters[character.ID] = character
	return nil
}

func (s *fakeStore) UpdateMemory(ctx context.Context, id string, summary string) error {
	character, ok := s.characters[id]
	if !ok {
		return store.ErrCharacterNotFound
	}
	character.MemoryPrompt = summary
	s.memory[id] = summary
	return nil
}

func (s *fakeStore) AppendPair(ctx context.Context, characterID, userText, modelText string) (int, error) {
	s.appendCalls++
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	character, ok := s.characters[characterID]
	if !ok {
		return 0, store.ErrCharacterNotFound
	}
	s.entries = append(s.entries,
		models.HistoryEntry{CharacterID: characterID, Role: models.RoleUser, Message: userText},
		models.HistoryEntry{CharacterID: characterID, Role: models.RoleModel, Message: modelText},
	)
	character.TurnCount += 2
	return character.TurnCount, nil
}

func (s *fakeStore) LoadRecent(ctx context.Context, characterID string, messageLimit int) ([]models.HistoryEntry, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []models.HistoryEntry
	for _, e := range s.entries {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	if len(out) > messageLimit {
		out = out[len(out)-messageLimit:]
	}
	if n := len(out); n > 0 && out[n-1].Role == models.RoleUser {
		out = out[:n-1]
	}
	return out, nil
}

type fakeGenerator struct {
	converseOutcome  ai.Outcome
	converseErr      error
	converseCalls    int
	lastInstruction  string
	lastHistory      []ai.TurnMessage
	lastMessage      string
	summarizeOutcome ai.Outcome
	summarizeErr     error
	summarizeCalls   int
	lastPrompt       string
}

func (g *fakeGenerator) Converse(ctx context.Context, systemInstruction string, history []ai.TurnMessage, message string) (ai.Outcome, error) {
	g.converseCalls++
	g.lastInstruction = systemInstruction
	g.lastHistory = history
	g.lastMessage = message
	if g.converseErr != nil {
		return ai.Outcome{}, g.converseErr
	}
	return g.converseOutcome, nil
}

func (g *fakeGenerator) Summarize(ctx context.Context, prompt string) (ai.Outcome, error) {
	g.summarizeCalls++
	g.lastPrompt = prompt
	if g.summarizeErr != nil {
		return ai.Outcome{}, g.summarizeErr
	}
	return g.summarizeOutcome, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", JSON: false, Output: io.Discard})
}

func newTestService(s *fakeStore, g *fakeGenerator, opts Options) *Service {
	log := testLogger()
	summarizer := NewSummarizer(s, s, g, opts.SummarizeInterval, log)
	return NewService(s, s, g, summarizer, nil, nil, opts, log)
}

func defaultOptions() Options {
	return Options{MaxHistoryTurns: 50, SummarizeInterval: 50, MaxTotalTurns: 100}
}

func TestSendMessageValidation(t *testing.T) {
	s := newFakeStore()
	svc := newTestService(s, &fakeGenerator{}, defaultOptions())

	_, err := svc.SendMessage(context.Background(), "c1", "")
	assert.ErrorIs(t, err, ErrMissingMessage)

	_, err = svc.SendMessage(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrMissingCharacterID)

	_, err = svc.SendMessage(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, store.ErrCharacterNotFound)
}

func TestSendMessageSuccessfulTurn(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1", SystemPrompt: "prompt"})
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "ahoy"}}
	svc := newTestService(s, g, defaultOptions())

	result, err := svc.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)

	assert.Equal(t, "ahoy", result.Reply)
	assert.Equal(t, 2, result.CurrentTurnCount)
	assert.Equal(t, 200, result.MaxTurns)
	assert.Equal(t, "hello", g.lastMessage)
	assert.Equal(t, "prompt", g.lastInstruction)
	assert.Len(t, s.entries, 2)
}

func TestSendMessageLimitReached(t *testing.T) {
	// turnCount 4 with a cap of 2 turns: 4/2 >= 2.
	s := newFakeStore(&models.Character{ID: "c1", TurnCount: 4})
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "x"}}
	opts := defaultOptions()
	opts.MaxTotalTurns = 2
	svc := newTestService(s, g, opts)

	_, err := svc.SendMessage(context.Background(), "c1", "hi")

	var limitErr *LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 4, limitErr.CurrentTurnCount)
	assert.Equal(t, 4, limitErr.MaxTurns)
	// No generation call and no store write happened.
	assert.Zero(t, g.converseCalls)
	assert.Zero(t, s.appendCalls)
}

func TestSendMessageHardCapScenario(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "hi there"}}
	opts := defaultOptions()
	opts.MaxTotalTurns = 2
	svc := newTestService(s, g, opts)

	first, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, first.CurrentTurnCount)

	second, err := svc.SendMessage(context.Background(), "c1", "hi again")
	require.NoError(t, err)
	assert.Equal(t, 4, second.CurrentTurnCount)

	_, err = svc.SendMessage(context.Background(), "c1", "one more")
	var limitErr *LimitReachedError
	assert.ErrorAs(t, err, &limitErr)
}

func TestSendMessageGenerationFailureAbortsTurn(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	g := &fakeGenerator{converseErr: &ai.GenerationError{Detail: "boom"}}
	svc := newTestService(s, g, defaultOptions())

	_, err := svc.SendMessage(context.Background(), "c1", "hi")

	var genErr *ai.GenerationError
	require.ErrorAs(t, err, &genErr)
	// Nothing was persisted, so no orphaned user-only turn exists.
	assert.Zero(t, s.appendCalls)
	assert.Empty(t, s.entries)
}

func TestSendMessagePersistenceFailureStillReplies(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1", TurnCount: 6})
	s.appendErr = errors.New("store down")
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "still here"}}
	svc := newTestService(s, g, defaultOptions())

	result, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)

	assert.Equal(t, "still here", result.Reply)
	// Counter falls back to the pre-call value.
	assert.Equal(t, 6, result.CurrentTurnCount)
}

func TestSendMessageBlockedAndEmptyFallbacks(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeBlocked, Reason: "SAFETY"}}
	svc := newTestService(s, g, defaultOptions())

	result, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "response was blocked: SAFETY", result.Reply)

	g.converseOutcome = ai.Outcome{Kind: ai.OutcomeEmpty}
	result, err = svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "no response could be generated", result.Reply)
}

func TestSendMessageHistoryLoadFailureDegrades(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	s.loadErr = errors.New("read failed")
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "ok"}}
	svc := newTestService(s, g, defaultOptions())

	result, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)
	assert.Empty(t, g.lastHistory)
}

func TestSummarizationTrigger(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	g := &fakeGenerator{
		converseOutcome:  ai.Outcome{Kind: ai.OutcomeReply, Text: "reply"},
		summarizeOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "summary"},
	}
	opts := defaultOptions()
	opts.SummarizeInterval = 2
	svc := newTestService(s, g, opts)

	// Turn 1: newCount=2, turnNumber=1 -> no summarization.
	_, err := svc.SendMessage(context.Background(), "c1", "first")
	require.NoError(t, err)
	assert.Zero(t, g.summarizeCalls)

	// Turn 2: newCount=4, turnNumber=2 -> summarization fires exactly once.
	_, err = svc.SendMessage(context.Background(), "c1", "second")
	require.NoError(t, err)
	assert.Equal(t, 1, g.summarizeCalls)
	assert.Equal(t, "summary", s.memory["c1"])

	// Turn 3: newCount=6, turnNumber=3 -> no further summarization.
	_, err = svc.SendMessage(context.Background(), "c1", "third")
	require.NoError(t, err)
	assert.Equal(t, 1, g.summarizeCalls)
}

func TestSummarizationFailureDoesNotAffectReply(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1"})
	g := &fakeGenerator{
		converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "reply"},
		summarizeErr:    &ai.GenerationError{Detail: "summary boom"},
	}
	opts := defaultOptions()
	opts.SummarizeInterval = 1
	svc := newTestService(s, g, opts)

	result, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "reply", result.Reply)
	assert.Equal(t, 1, g.summarizeCalls)
	assert.Empty(t, s.memory["c1"])
}

func TestGetProfile(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1", Name: "Aiko", TurnCount: 4})
	svc := newTestService(s, &fakeGenerator{}, defaultOptions())

	profile, err := svc.GetProfile(context.Background(), "c1", false)
	require.NoError(t, err)
	assert.Equal(t, "Aiko", profile.Character.Name)
	assert.Equal(t, 4, profile.CurrentTurnCount)
	assert.Equal(t, 200, profile.MaxTurns)
	assert.Nil(t, profile.History)

	_, err = svc.GetProfile(context.Background(), "missing", false)
	assert.ErrorIs(t, err, store.ErrCharacterNotFound)

	_, err = svc.GetProfile(context.Background(), "", false)
	assert.ErrorIs(t, err, ErrMissingCharacterID)
}

func TestMemoryInjectedIntoInstruction(t *testing.T) {
	s := newFakeStore(&models.Character{ID: "c1", SystemPrompt: "base", MemoryPrompt: "likes tea"})
	g := &fakeGenerator{converseOutcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "ok"}}
	svc := newTestService(s, g, defaultOptions())

	_, err := svc.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "base\n\n[memory]\nlikes tea", g.lastInstruction)
}
