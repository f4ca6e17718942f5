// Package summarize turns raw encyclopedia material into the short
// visitor-facing description stored on a place.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Summarizer produces a short description for a place from source text.
type Summarizer interface {
	Describe(ctx context.Context, req Request) (string, error)
}

// Request carries the material a description is written from.
type Request struct {
	PlaceName string
	Extract   string
	Infobox   map[string]string
	Language  string
}

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
	maxExtractChars  = 6000
)

const systemPrompt = `You write concise descriptions of natural places for an outdoor discovery app.
Given encyclopedia material about a place, write a 2-4 sentence description in the same language as the material.
Focus on what makes the place distinctive for visitors: landscape, activities, notable features.
Do not mention the encyclopedia, sources, or that you were given material. Output only the description.`

// Option configures the anthropic-backed summarizer.
type Option func(*anthropicSummarizer)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(s *anthropicSummarizer) { s.model = model }
}

type anthropicSummarizer struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates a Summarizer backed by the Anthropic API.
func NewAnthropic(apiKey string, opts ...Option) Summarizer {
	s := &anthropicSummarizer{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *anthropicSummarizer) Describe(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(req)
	if prompt == "" {
		return "", eris.New("summarize: no source material")
	}

	msg, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: defaultMaxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "summarize: describe %s", req.PlaceName)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	description := strings.TrimSpace(out.String())
	if description == "" {
		return "", eris.Errorf("summarize: empty response for %s", req.PlaceName)
	}

	zap.L().Debug("description generated",
		zap.String("place", req.PlaceName),
		zap.String("model", s.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return description, nil
}

// buildPrompt assembles the user message from the request material.
// Infobox fields are sorted so the prompt is stable across runs.
func buildPrompt(req Request) string {
	extract := strings.TrimSpace(req.Extract)
	if len(extract) > maxExtractChars {
		extract = extract[:maxExtractChars]
	}
	if extract == "" && len(req.Infobox) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Place: %s\n", req.PlaceName)
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	if len(req.Infobox) > 0 {
		b.WriteString("\nKey facts:\n")
		keys := make([]string, 0, len(req.Infobox))
		for k := range req.Infobox {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Infobox[k])
		}
	}
	if extract != "" {
		b.WriteString("\nArticle extract:\n")
		b.WriteString(extract)
	}
	return b.String()
}
