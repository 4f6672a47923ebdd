package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/camden-git/framesys/models"
)

// AnalysisClient runs vision analysis through a provider under the retry policy
type AnalysisClient struct {
	provider AnalysisProvider
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewAnalysisClient(provider AnalysisProvider, retry RetryPolicy, logger *slog.Logger) *AnalysisClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisClient{provider: provider, retry: retry, logger: logger.With("component", "ai.analysis", "provider", provider.Name())}
}

// Analyze returns a fully populated analysis or a classified error.
// Malformed responses fail with ErrSchemaViolation and are not retried.
func (c *AnalysisClient) Analyze(ctx context.Context, image []byte) (*models.Analysis, error) {
	var result *models.Analysis
	err := c.retry.Do(ctx, "analyze", func(ctx context.Context) error {
		raw, err := c.provider.AnalyzeRaw(ctx, image)
		if err != nil {
			return err
		}
		analysis, err := DecodeAnalysis(c.provider.Name(), raw)
		if err != nil {
			c.logger.Warn("discarding malformed analysis", "error", err)
			return err
		}
		result = analysis
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type wireAnalysis struct {
	Quality          *models.Quality  `json:"quality"`
	QualityReason    *string          `json:"qualityReason"`
	People           *[]string        `json:"people"`
	ShotType         *models.ShotType `json:"shotType"`
	Tags             *[]string        `json:"tags"`
	CompositionScore *float64         `json:"compositionScore"`
	TechnicalAdvice  *[]string        `json:"technicalAdvice"`
}

// DecodeAnalysis strictly decodes a provider analysis object: all seven fields
// present, enums valid and the score inside [0, 100].
func DecodeAnalysis(provider string, raw []byte) (*models.Analysis, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, schemaError(provider, "empty analysis payload")
	}

	var w wireAnalysis
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, schemaError(provider, "analysis is not a valid object: %v", err)
	}

	missing := func(name string) error {
		return schemaError(provider, "analysis field %q is missing", name)
	}
	switch {
	case w.Quality == nil:
		return nil, missing("quality")
	case w.QualityReason == nil:
		return nil, missing("qualityReason")
	case w.People == nil:
		return nil, missing("people")
	case w.ShotType == nil:
		return nil, missing("shotType")
	case w.Tags == nil:
		return nil, missing("tags")
	case w.CompositionScore == nil:
		return nil, missing("compositionScore")
	case w.TechnicalAdvice == nil:
		return nil, missing("technicalAdvice")
	}

	if !w.Quality.IsValid() {
		return nil, schemaError(provider, "unknown quality %q", *w.Quality)
	}
	if !w.ShotType.IsValid() {
		return nil, schemaError(provider, "unknown shot type %q", *w.ShotType)
	}
	if score := *w.CompositionScore; score < 0 || score > 100 {
		return nil, schemaError(provider, "composition score %v outside 0-100", score)
	}

	return &models.Analysis{
		Quality:          *w.Quality,
		QualityReason:    *w.QualityReason,
		People:           *w.People,
		ShotType:         *w.ShotType,
		Tags:             *w.Tags,
		CompositionScore: *w.CompositionScore,
		TechnicalAdvice:  *w.TechnicalAdvice,
	}, nil
}
