package enrich

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// maxOutputTokens caps the completion; a context sentence never needs more.
const maxOutputTokens = 100

// GenkitGenerator is the production Generator. It runs deterministic
// (temperature 0) single-turn completions against a named model.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitGenerator creates a generator bound to a model, e.g.
// "googleai/gemini-2.0-flash".
func NewGenkitGenerator(g *genkit.Genkit, modelName string) (*GenkitGenerator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &GenkitGenerator{g: g, modelName: modelName}, nil
}

// Generate implements Generator.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     0,
			MaxOutputTokens: maxOutputTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", gg.modelName, err)
	}
	return resp.Text(), nil
}
