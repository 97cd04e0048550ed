package app

import (
	"testing"

	"google.golang.org/genai"

	"github.com/twinforge/twindex/internal/config"
)

func TestProvideEmbedOptions_GoogleAIRequestsConfiguredDimension(t *testing.T) {
	cfg := &config.Config{Provider: config.ProviderGoogleAI, EmbedderDimension: 1536}

	opts := provideEmbedOptions(cfg)
	embedCfg, ok := opts.(*genai.EmbedContentConfig)
	if !ok {
		t.Fatalf("options = %T, want *genai.EmbedContentConfig", opts)
	}
	if embedCfg.OutputDimensionality == nil || *embedCfg.OutputDimensionality != 1536 {
		t.Errorf("OutputDimensionality = %v, want 1536", embedCfg.OutputDimensionality)
	}
}

func TestProvideEmbedOptions_FixedDimensionProviders(t *testing.T) {
	for _, provider := range []string{config.ProviderOllama, config.ProviderOpenAI} {
		cfg := &config.Config{Provider: provider, EmbedderDimension: 1536}
		if opts := provideEmbedOptions(cfg); opts != nil {
			t.Errorf("provider %s: options = %v, want nil", provider, opts)
		}
	}
}
