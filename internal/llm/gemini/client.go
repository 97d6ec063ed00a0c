// Package gemini implements llm.CompletionClient using Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/lahirugmg/business-cost-tracker/internal/llm"
)

// Config for the Gemini client.
type Config struct {
	APIKey string // required
	Model  string // default gemini-1.5-flash
}

type Client struct {
	cfg    Config
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := gc.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"

	return &Client{cfg: cfg, client: gc, model: model, logger: logger}, nil
}

// Complete sends one structured-output request. Gemini has no separate system
// channel in this flow, so instructions, schema, and payload travel as one
// prompt. JSON MIME type plus fence stripping covers models that wrap the
// reply in markdown anyway.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"prompt_len", len(req.UserPrompt),
	)

	prompt := req.SystemPrompt +
		"\n\nJSON Schema:\n" + llm.MustJSON(req.Schema) +
		"\n\n" + req.UserPrompt

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, errors.New("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	content, err := extractJSONObject(b.String())
	if err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"content_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// extractJSONObject strips markdown code fences and any prose around the
// reply, keeping the span from the first "{" to the last "}".
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", errors.New("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", errors.New("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}
