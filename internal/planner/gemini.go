package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"droidpilot/internal/config"
)

// GeminiPlanner implements Planner against the Gemini API. Requests are
// paced by a client-side rate limiter and retried with exponential backoff
// on transient failures.
type GeminiPlanner struct {
	client  *genai.Client
	model   string
	logger  *zap.Logger
	limiter *rate.Limiter
	cfg     config.PlannerConfig
}

// NewGeminiPlanner initializes the client.
func NewGeminiPlanner(ctx context.Context, cfg config.PlannerConfig, logger *zap.Logger) (*GeminiPlanner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiPlanner{
		client:  client,
		model:   cfg.Model,
		logger:  logger.Named("planner.gemini"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1),
		cfg:     cfg,
	}, nil
}

// PlanAction sends the screenshot and episode summary to the model and
// returns its raw reply with retries.
func (p *GeminiPlanner) PlanAction(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(buildUserPrompt(req)),
	}
	if len(req.Screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Screenshot, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(p.cfg.Temperature),
		TopP:              genai.Ptr(p.cfg.TopP),
		MaxOutputTokens:   p.cfg.MaxTokens,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.cfg.MaxRetryElapsed
	b.MaxInterval = 30 * time.Second

	var reply string

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.APITimeout)
		defer cancel()

		startTime := time.Now()
		resp, err := p.client.Models.GenerateContent(callCtx, p.model, contents, genCfg)
		duration := time.Since(startTime)

		if err != nil {
			if isRetryable(err) {
				p.logger.Warn("Transient planner error, retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(fmt.Errorf("planner request failed: %w", err))
		}

		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			// An empty candidate is usually a transient generation hiccup.
			return fmt.Errorf("planner returned an empty reply")
		}

		p.logger.Info("Planner decision received",
			zap.Duration("duration", duration),
			zap.Int("reply_chars", len(text)),
		)
		reply = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return reply, nil
}

// isRetryable classifies API failures worth another attempt: rate limits,
// server-side errors, and network hiccups.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"unavailable",
		"resource_exhausted",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
