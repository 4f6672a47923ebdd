package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// ProviderConfig carries the settings for every provider variant
type ProviderConfig struct {
	FunctionsURL  string
	FunctionsKey  string
	GeminiAPIKey  string
	GeminiBaseURL string
	Ollama        OllamaOptions
	HTTPClient    *http.Client
}

// NewAnalysisProvider builds the named analysis variant
func NewAnalysisProvider(name string, cfg ProviderConfig, logger *slog.Logger) (AnalysisProvider, error) {
	switch name {
	case ProviderFunctions:
		if cfg.FunctionsURL == "" {
			return nil, fmt.Errorf("analysis provider %q requires FUNCTIONS_URL", name)
		}
		return NewFunctionsProvider(cfg.FunctionsURL, cfg.FunctionsKey, cfg.HTTPClient), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("analysis provider %q requires GEMINI_API_KEY", name)
		}
		return NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.HTTPClient), nil
	case ProviderOllama:
		return NewOllamaProvider(cfg.Ollama, cfg.HTTPClient, logger), nil
	}
	return nil, fmt.Errorf("unknown analysis provider %q", name)
}

// NewEnhancementProvider builds the named enhancement variant. The local
// ollama variant has no image model.
func NewEnhancementProvider(name string, cfg ProviderConfig) (EnhancementProvider, error) {
	switch name {
	case ProviderFunctions:
		if cfg.FunctionsURL == "" {
			return nil, fmt.Errorf("enhancement provider %q requires FUNCTIONS_URL", name)
		}
		return NewFunctionsProvider(cfg.FunctionsURL, cfg.FunctionsKey, cfg.HTTPClient), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("enhancement provider %q requires GEMINI_API_KEY", name)
		}
		return NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.HTTPClient), nil
	}
	return nil, fmt.Errorf("unsupported enhancement provider %q", name)
}

// CategoryProviderFor picks a category provider, preferring the analysis
// provider when it can serve categories.
func CategoryProviderFor(analysis AnalysisProvider, enhancement EnhancementProvider) CategoryProvider {
	if cp, ok := analysis.(CategoryProvider); ok {
		return cp
	}
	if cp, ok := enhancement.(CategoryProvider); ok {
		return cp
	}
	return noCategories{}
}

type noCategories struct{}

func (noCategories) Name() string { return "none" }

func (noCategories) SuggestCategories(context.Context, []CategorySample) ([]string, error) {
	return nil, fmt.Errorf("no category provider configured")
}
