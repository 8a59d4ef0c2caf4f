package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-character-chat/backend/pkg/logger"
	"ai-character-chat/backend/pkg/resilience"
)

// Generator is the generation client contract used by the chat services.
type Generator interface {
	// Converse runs one chat turn: a fresh model context parameterized by the
	// system instruction, seeded with history, with message appended last.
	Converse(ctx context.Context, systemInstruction string, history []TurnMessage, message string) (Outcome, error)
	// Summarize runs a single-prompt call used for memory compaction.
	Summarize(ctx context.Context, prompt string) (Outcome, error)
}

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewGeminiClient creates a Gemini generation client. The API key is
// required; obtaining it is the secrets layer's job.
func NewGeminiClient(cfg GeminiConfig, log *logger.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("gemini"), log),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Converse implements Generator. The instruction is bound per call; no
// per-call client construction is needed.
func (c *GeminiClient) Converse(ctx context.Context, systemInstruction string, history []TurnMessage, message string) (Outcome, error) {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(history)+1),
	}
	if systemInstruction != "" {
		req.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		}
	}
	for _, msg := range history {
		req.Contents = append(req.Contents, geminiContent{
			Role:  msg.Role,
			Parts: []geminiPart{{Text: msg.Text}},
		})
	}
	req.Contents = append(req.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: message}},
	})

	return c.generate(ctx, req)
}

// Summarize implements Generator with a single user prompt and no
// system instruction, matching how memory compaction calls the model.
func (c *GeminiClient) Summarize(ctx context.Context, prompt string) (Outcome, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	return c.generate(ctx, req)
}

func (c *GeminiClient) generate(ctx context.Context, request geminiRequest) (Outcome, error) {
	var outcome Outcome

	err := c.breaker.Execute(func() error {
		var execErr error
		outcome, execErr = c.doGenerate(ctx, request)
		return execErr
	})
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return Outcome{}, genErr
		}
		return Outcome{}, &GenerationError{Detail: "generation backend unavailable", Err: err}
	}

	return outcome, nil
}

func (c *GeminiClient) doGenerate(ctx context.Context, request geminiRequest) (Outcome, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return Outcome{}, &GenerationError{Detail: "error marshaling request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Outcome{}, &GenerationError{Detail: "error creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, &GenerationError{Detail: "error making API request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, &GenerationError{Detail: "error reading response body", Err: err}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return Outcome{}, &GenerationError{
			Detail: fmt.Sprintf("error unmarshaling response (status %d)", resp.StatusCode),
			Err:    err,
		}
	}

	if geminiResp.Error != nil {
		return Outcome{}, &GenerationError{
			Detail: fmt.Sprintf("API error %s: %s", geminiResp.Error.Status, geminiResp.Error.Message),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{}, &GenerationError{
			Detail: fmt.Sprintf("API request failed with status code %d: %s", resp.StatusCode, string(body)),
		}
	}

	// A blocked prompt is reported via promptFeedback with no candidates.
	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return Outcome{Kind: OutcomeBlocked, Reason: geminiResp.PromptFeedback.BlockReason}, nil
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return Outcome{Kind: OutcomeEmpty}, nil
	}

	text := geminiResp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return Outcome{Kind: OutcomeEmpty}, nil
	}

	return Outcome{Kind: OutcomeReply, Text: text}, nil
}
