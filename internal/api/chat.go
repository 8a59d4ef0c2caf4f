package api

import (
	"errors"
	"fmt"
	"net/http"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/chat"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the profile lookup and chat turn endpoints.
type ChatHandler struct {
	service *chat.Service
	log     *logger.Logger
}

func NewChatHandler(service *chat.Service, log *logger.Logger) *ChatHandler {
	return &ChatHandler{service: service, log: log}
}

// GetProfile handles GET ?id=<characterID>. Pass history=true to include the
// recent message window in the payload.
func (h *ChatHandler) GetProfile(c *gin.Context) {
	characterID := c.Query("id")
	if characterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'id' query parameter."})
		return
	}
	c.Set("characterId", characterID)

	includeHistory := c.Query("history") == "true"

	profile, err := h.service.GetProfile(c.Request.Context(), characterID, includeHistory)
	if err != nil {
		if errors.Is(err, store.ErrCharacterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Character '%s' not found.", characterID)})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error processing profile request."})
		return
	}

	character := profile.Character
	body := gin.H{
		"id":               character.ID,
		"name":             displayName(character.Name),
		"iconUrl":          character.IconURL,
		"profileText":      displayProfile(character.ProfileText),
		"currentTurnCount": profile.CurrentTurnCount,
		"maxTurns":         profile.MaxTurns,
	}
	if includeHistory {
		body["history"] = profile.History
	}

	c.JSON(http.StatusOK, body)
}

// ChatRequest is the POST body for a chat turn.
type ChatRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// PostChat handles one chat turn: POST {id, message} -> {reply, counts}.
func (h *ChatHandler) PostChat(c *gin.Context) {
	var request ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON."})
		return
	}
	if request.ID != "" {
		c.Set("characterId", request.ID)
	}

	result, err := h.service.SendMessage(c.Request.Context(), request.ID, request.Message)
	if err != nil {
		h.respondTurnError(c, request.ID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply":            result.Reply,
		"currentTurnCount": result.CurrentTurnCount,
		"maxTurns":         result.MaxTurns,
	})
}

func (h *ChatHandler) respondTurnError(c *gin.Context, characterID string, err error) {
	var limitErr *chat.LimitReachedError
	var genErr *ai.GenerationError

	switch {
	case errors.Is(err, chat.ErrMissingMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'message'."})

	case errors.Is(err, chat.ErrMissingCharacterID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'id'."})

	case errors.Is(err, store.ErrCharacterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Character '%s' not found.", characterID)})

	case errors.As(err, &limitErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":            "Conversation limit reached for this character.",
			"code":             "LIMIT_REACHED",
			"currentTurnCount": limitErr.CurrentTurnCount,
			"maxTurns":         limitErr.MaxTurns,
		})

	case errors.As(err, &genErr):
		c.Error(err)
		message := "Failed to get response from AI or process request."
		if genErr.IsInvalidCredential() {
			message = "AI service error: invalid API key."
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})

	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get response from AI or process request."})
	}
}

// Display metadata is optional on the character record; the API fills in
// placeholders rather than returning empty strings.

func displayName(name string) string {
	if name == "" {
		return "Unnamed character"
	}
	return name
}

func displayProfile(profileText string) string {
	if profileText == "" {
		return "No profile yet."
	}
	return profileText
}
