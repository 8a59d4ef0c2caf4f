package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/chat"
	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	characters map[string]*models.Character
}

func (s *stubStore) GetByID(ctx context.Context, id string) (*models.Character, error) {
	character, ok := s.characters[id]
	if !ok {
		return nil, store.ErrCharacterNotFound
	}
	copied := *character
	return &copied, nil
}

func (s *stubStore) Create(ctx context.Context, character *models.Character) error {
	s.characters[character.ID] = character
	return nil
}

func (s *stubStore) UpdateMemory(ctx context.Context, id string, summary string) error {
	character, ok := s.characters[id]
	if !ok {
		return store.ErrCharacterNotFound
	}
	character.MemoryPrompt = summary
	return nil
}

func (s *stubStore) AppendPair(ctx context.Context, characterID, userText, modelText string) (int, error) {
	character, ok := s.characters[characterID]
	if !ok {
		return 0, store.ErrCharacterNotFound
	}
	character.TurnCount += 2
	return character.TurnCount, nil
}

func (s *stubStore) LoadRecent(ctx context.Context, characterID string, messageLimit int) ([]models.HistoryEntry, error) {
	return nil, nil
}

type stubGenerator struct {
	outcome ai.Outcome
	err     error
}

func (g *stubGenerator) Converse(ctx context.Context, systemInstruction string, history []ai.TurnMessage, message string) (ai.Outcome, error) {
	if g.err != nil {
		return ai.Outcome{}, g.err
	}
	return g.outcome, nil
}

func (g *stubGenerator) Summarize(ctx context.Context, prompt string) (ai.Outcome, error) {
	return ai.Outcome{Kind: ai.OutcomeEmpty}, nil
}

func newTestRouter(t *testing.T, characters []*models.Character, generator *stubGenerator, maxTurns int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &stubStore{characters: make(map[string]*models.Character)}
	for _, c := range characters {
		s.characters[c.ID] = c
	}

	log := logger.New(logger.Config{Level: "error", JSON: false, Output: io.Discard})
	opts := chat.Options{MaxHistoryTurns: 50, SummarizeInterval: 50, MaxTotalTurns: maxTurns}
	summarizer := chat.NewSummarizer(s, s, generator, opts.SummarizeInterval, log)
	service := chat.NewService(s, s, generator, summarizer, nil, nil, opts, log)
	handler := NewChatHandler(service, log)

	r := gin.New()
	r.GET("/chat", handler.GetProfile)
	r.POST("/chat", handler.PostChat)
	return r
}

func performRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetProfileSuccess(t *testing.T) {
	r := newTestRouter(t, []*models.Character{
		{ID: "c1", Name: "Aiko", IconURL: "https://example.com/aiko.png", ProfileText: "A cheerful guide.", TurnCount: 6},
	}, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodGet, "/chat?id=c1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"c1"`)
	assert.Contains(t, w.Body.String(), `"name":"Aiko"`)
	assert.Contains(t, w.Body.String(), `"currentTurnCount":6`)
	assert.Contains(t, w.Body.String(), `"maxTurns":200`)
}

func TestGetProfileDefaultsDisplayFields(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1"}}, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodGet, "/chat?id=c1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Unnamed character"`)
	assert.Contains(t, w.Body.String(), `"profileText":"No profile yet."`)
}

func TestGetProfileMissingID(t *testing.T) {
	r := newTestRouter(t, nil, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodGet, "/chat", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing 'id' query parameter.")
}

func TestGetProfileUnknownCharacter(t *testing.T) {
	r := newTestRouter(t, nil, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodGet, "/chat?id=x", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Character 'x' not found."}`, w.Body.String())
}

func TestPostChatSuccess(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1"}}, &stubGenerator{
		outcome: ai.Outcome{Kind: ai.OutcomeReply, Text: "hello there"},
	}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"c1","message":"hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reply":"hello there"`)
	assert.Contains(t, w.Body.String(), `"currentTurnCount":2`)
}

func TestPostChatMissingMessage(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1"}}, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"c1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing 'message'."}`, w.Body.String())
}

func TestPostChatMissingID(t *testing.T) {
	r := newTestRouter(t, nil, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"message":"hi"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing 'id'."}`, w.Body.String())
}

func TestPostChatInvalidJSON(t *testing.T) {
	r := newTestRouter(t, nil, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid JSON.")
}

func TestPostChatUnknownCharacter(t *testing.T) {
	r := newTestRouter(t, nil, &stubGenerator{}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"ghost","message":"hi"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Character 'ghost' not found."}`, w.Body.String())
}

func TestPostChatLimitReached(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1", TurnCount: 4}}, &stubGenerator{}, 2)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"c1","message":"hi"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"LIMIT_REACHED"`)
	assert.Contains(t, w.Body.String(), `"currentTurnCount":4`)
	assert.Contains(t, w.Body.String(), `"maxTurns":4`)
}

func TestPostChatGenerationFailure(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1"}}, &stubGenerator{
		err: &ai.GenerationError{Detail: "upstream exploded"},
	}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"c1","message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to get response from AI or process request.")
}

func TestPostChatInvalidCredential(t *testing.T) {
	r := newTestRouter(t, []*models.Character{{ID: "c1"}}, &stubGenerator{
		err: &ai.GenerationError{Detail: "API key not valid"},
	}, 100)

	w := performRequest(r, http.MethodPost, "/chat", `{"id":"c1","message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"AI service error: invalid API key."}`, w.Body.String())
}
