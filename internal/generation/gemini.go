package generation

import (
	"context"
	"fmt"
	"time"

	"chorus/internal/config"
	"chorus/internal/logging"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates posts with Google's Gemini API.
type Gemini struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini generator. A missing or placeholder key is not
// an error: the generator reports not-ready and agents stand by.
func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	g := &Gemini{
		model:   cfg.Model,
		timeout: cfg.GetTimeout(),
	}
	if g.model == "" {
		g.model = "gemini-2.5-flash"
	}
	if !cfg.Ready() {
		logging.APIWarn("Gemini API key missing; generation disabled")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

// Ready reports whether a client was configured.
func (g *Gemini) Ready() bool {
	return g.models != nil
}

// Generate sends the prompt and parses the JSON reply.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Result, error) {
	if !g.Ready() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryAPI, "GenerateContent")
	defer timer.StopWithThreshold(15 * time.Second)

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(req.Instruction, genai.RoleUser)},
		genCfg,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	if err := checkBlocked(resp); err != nil {
		return nil, err
	}

	raw := resp.Text()
	logging.APIDebug("Gemini returned %d chars", len(raw))
	return ParseResult(raw, req.RequireVisual)
}

func checkBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return ErrEmpty
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Errorf("%w: prompt %s", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return ErrEmpty
	}
	switch reason := resp.Candidates[0].FinishReason; reason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII,
		genai.FinishReasonRecitation:
		return fmt.Errorf("%w: finish reason %s", ErrBlocked, reason)
	}
	return nil
}
