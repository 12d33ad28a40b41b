package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// SuggestionCount is how many sections a suggest call asks for.
const SuggestionCount = 3

const refinePrompt = `You are a Senior UX Strategist. Refine the following draft text for a "%s" section of a UX Brief. Make it professional, concise, and actionable. Do not add markdown formatting like **bold** excessively. Draft Text: "%s"`

const suggestPrompt = `Generate 3 unique, advanced UX brief questions/sections that would help clarify a complex product feature. Return strictly a JSON array of objects with "title" and "description" keys. No markdown blocks.`

type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Gateway struct {
	generator Generator
	model     string
}

func NewGateway(generator Generator, model string) *Gateway {
	if model == "" {
		model = DefaultModel
	}
	return &Gateway{generator: generator, model: model}
}

// RefineSection asks for a professional rewrite of currentText. Blank text
// is returned as is without calling the service, and any failure returns
// currentText unchanged.
func (g *Gateway) RefineSection(ctx context.Context, currentText, sectionTitle string) string {
	if strings.TrimSpace(currentText) == "" {
		return currentText
	}
	response, err := g.generator.Generate(ctx, GenerateRequest{
		Model:  g.model,
		Prompt: fmt.Sprintf(refinePrompt, sectionTitle, currentText),
	})
	if err != nil {
		slog.Warn("refine failed, keeping draft", "section", sectionTitle, "err", err)
		return currentText
	}
	refined := strings.TrimSpace(response.Text)
	if refined == "" {
		slog.Warn("refine returned no text, keeping draft", "section", sectionTitle)
		return currentText
	}
	return refined
}

// SuggestSections asks for SuggestionCount new brief sections. Anything
// other than a clean JSON array of titled objects yields an empty list.
func (g *Gateway) SuggestSections(ctx context.Context) []Suggestion {
	response, err := g.generator.Generate(ctx, GenerateRequest{
		Model:            g.model,
		Prompt:           suggestPrompt,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		slog.Warn("suggest failed", "err", err)
		return []Suggestion{}
	}
	suggestions, err := parseSuggestions(response.Text)
	if err != nil {
		slog.Warn("suggest returned malformed output", "err", err)
		return []Suggestion{}
	}
	return suggestions
}

func parseSuggestions(text string) ([]Suggestion, error) {
	decoder := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	var suggestions []Suggestion
	if err := decoder.Decode(&suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("decode suggestions: trailing data after array")
	}
	if suggestions == nil {
		return nil, fmt.Errorf("decode suggestions: expected an array")
	}
	for i, suggestion := range suggestions {
		if strings.TrimSpace(suggestion.Title) == "" {
			return nil, fmt.Errorf("decode suggestions: item %d has no title", i)
		}
	}
	return suggestions, nil
}
