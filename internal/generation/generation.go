// Package generation turns a role instruction plus inspiration text into a
// structured post body. Every failure mode (transport error, safety block,
// empty or unparseable output) surfaces as an error the agent runner treats
// as a routine abort.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotConfigured is returned when the provider has no usable API key.
	ErrNotConfigured = errors.New("generation provider not configured")
	// ErrBlocked is returned when the provider refused the prompt or output.
	ErrBlocked = errors.New("generation blocked")
	// ErrEmpty is returned when the provider produced no text.
	ErrEmpty = errors.New("generation returned no text")
	// ErrMalformed is returned when no structured payload could be parsed.
	ErrMalformed = errors.New("generation output malformed")
)

// Request is one generation call.
type Request struct {
	Instruction     string // role instruction with the inspiration rendered in
	Temperature     float32
	MaxOutputTokens int32
	RequireVisual   bool // the result must carry a visual query
}

// Result is the structured output every agent expects.
type Result struct {
	Text   string `json:"text"`
	Visual string `json:"visual,omitempty"`
}

// Generator produces a Result or fails cleanly.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Ready() bool
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseResult extracts the first-to-last brace span of raw and decodes it.
// Models sometimes wrap JSON in prose or code fences; both are tolerated.
func ParseResult(raw string, requireVisual bool) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmpty
	}
	span := jsonObject.FindString(raw)
	if span == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformed)
	}

	var res Result
	if err := json.Unmarshal([]byte(span), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	res.Text = strings.TrimSpace(res.Text)
	res.Visual = strings.TrimSpace(res.Visual)

	if res.Text == "" {
		return nil, fmt.Errorf("%w: missing text field", ErrMalformed)
	}
	if requireVisual && res.Visual == "" {
		return nil, fmt.Errorf("%w: missing visual field", ErrMalformed)
	}
	return &res, nil
}
