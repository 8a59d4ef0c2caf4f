package ai

import (
	"fmt"
	"strings"
)

// OutcomeKind classifies the result of a generation call.
type OutcomeKind int

const (
	// OutcomeReply means the model produced text.
	OutcomeReply OutcomeKind = iota
	// OutcomeBlocked means the prompt or response was refused by content
	// filtering; Reason carries the block reason when known.
	OutcomeBlocked
	// OutcomeEmpty means the call succeeded but no text came back.
	OutcomeEmpty
)

// Outcome is the tri-state result of a generation call. Blocked and Empty
// are not failures; transport and API errors are returned as *GenerationError
// instead and never folded into an Outcome.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Reason string
}

// FallbackText renders the user-visible text for an outcome, applying the
// fixed fallbacks for blocked and empty results.
func (o Outcome) FallbackText() string {
	switch o.Kind {
	case OutcomeReply:
		return o.Text
	case OutcomeBlocked:
		return fmt.Sprintf("response was blocked: %s", o.Reason)
	default:
		return "no response could be generated"
	}
}

// TurnMessage is one history message in the shape the generation call expects.
type TurnMessage struct {
	Role string
	Text string
}

// GenerationError wraps any transport or API failure from the generation
// backend. It is always surfaced to the caller as a request failure.
type GenerationError struct {
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Detail)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsInvalidCredential reports whether the failure looks like a rejected API
// key. The upstream error is free text, so this is a pattern match.
func (e *GenerationError) IsInvalidCredential() bool {
	detail := strings.ToLower(e.Detail)
	if e.Err != nil {
		detail += " " + strings.ToLower(e.Err.Error())
	}
	return strings.Contains(detail, "api key not valid") ||
		strings.Contains(detail, "api_key_invalid") ||
		strings.Contains(detail, "invalid api key")
}
