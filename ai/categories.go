package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/camden-git/framesys/models"
)

const (
	CategorySampleSize     = 5
	MaxCategorySuggestions = 8
)

// CategorySuggester proposes category labels from a project's first frames.
// It never fails: any provider problem yields an empty list.
type CategorySuggester struct {
	provider CategoryProvider
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewCategorySuggester(provider CategoryProvider, retry RetryPolicy, logger *slog.Logger) *CategorySuggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategorySuggester{provider: provider, retry: retry, logger: logger.With("component", "ai.categories", "provider", provider.Name())}
}

// Suggest samples the first frames and returns up to eight distinct labels
func (s *CategorySuggester) Suggest(ctx context.Context, frames []models.Frame) []string {
	if len(frames) == 0 {
		return []string{}
	}
	n := len(frames)
	if n > CategorySampleSize {
		n = CategorySampleSize
	}
	samples := make([]CategorySample, n)
	for i := 0; i < n; i++ {
		samples[i] = CategorySample{Image: frames[i].DisplayImage(), Analysis: frames[i].Analysis}
	}

	var raw []string
	err := s.retry.Do(ctx, "suggest_categories", func(ctx context.Context) error {
		out, err := s.provider.SuggestCategories(ctx, samples)
		raw = out
		return err
	})
	if err != nil {
		s.logger.Warn("category suggestion failed, returning none", "error", err)
		return []string{}
	}
	return NormalizeCategories(raw)
}

var (
	bulletPrefix = regexp.MustCompile(`^[-*]\s*`)
	stripChars   = regexp.MustCompile(`["\[\]]`)
)

// NormalizeCategories trims labels, drops empties and case-insensitive
// duplicates, and caps the list.
func NormalizeCategories(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.TrimSpace(strings.Trim(strings.TrimSpace(c), `"'`))
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == MaxCategorySuggestions {
			break
		}
	}
	return out
}

// ParseCategoryList reads a model reply that should be a JSON array of
// strings, falling back to one label per line.
func ParseCategoryList(text string) []string {
	var list []string
	if err := json.Unmarshal([]byte(extractJSON(text, '[', ']')), &list); err == nil {
		return NormalizeCategories(list)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = bulletPrefix.ReplaceAllString(line, "")
		line = strings.TrimRight(stripChars.ReplaceAllString(line, ""), ",")
		lines = append(lines, line)
	}
	return NormalizeCategories(lines)
}

// categoryPrompt describes the sampled frames for a text-only model
func categoryPrompt(samples []CategorySample) string {
	var b strings.Builder
	b.WriteString("Analyze these video frame descriptions and suggest 5-8 relevant category labels that would help organize them effectively.\n\nFrame descriptions:\n")
	for i, s := range samples {
		tags, quality, shot := "no tags", "unknown", "unknown"
		if s.Analysis != nil {
			if len(s.Analysis.Tags) > 0 {
				tags = strings.Join(s.Analysis.Tags, ", ")
			}
			quality = string(s.Analysis.Quality)
			shot = string(s.Analysis.ShotType)
		}
		fmt.Fprintf(&b, "Frame %d: %s, Quality: %s, Shot: %s\n", i+1, tags, quality, shot)
	}
	b.WriteString(`
Return categories that are:
- Specific but not too narrow (e.g., "Portrait", "Landscape", "Action", "Close-up", "Group Photo")
- Useful for organizing and filtering
- Based on content, composition, and subject matter
- Practical for a photo library

Return ONLY a JSON array of category strings, no other text.`)
	return b.String()
}
