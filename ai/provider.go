package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/camden-git/framesys/models"
)

// AnalysisProvider returns the raw JSON analysis object for one image
type AnalysisProvider interface {
	Name() string
	AnalyzeRaw(ctx context.Context, image []byte) (json.RawMessage, error)
}

// EnhancementProvider returns a new image produced from image and instruction
type EnhancementProvider interface {
	Name() string
	EnhanceImage(ctx context.Context, image []byte, instruction string) ([]byte, error)
}

// CategoryProvider proposes organisation labels for a handful of frames
type CategoryProvider interface {
	Name() string
	SuggestCategories(ctx context.Context, samples []CategorySample) ([]string, error)
}

// CategorySample is one frame's display image and analysis
type CategorySample struct {
	Image    []byte
	Analysis *models.Analysis
}

// Provider names accepted by configuration
const (
	ProviderFunctions = "functions"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

const analysisPrompt = `Analyze this video frame as a potential photograph. Provide structured analysis including:
- Quality assessment (excellent/good/fair)
- Reason for quality rating
- People detected (list names/descriptions)
- Shot type (posed/candid/uncertain)
- Relevant tags
- Composition score (0-100)
- Technical advice for improvement`

const analysisJSONHint = `

Return only a JSON object with these exact fields: quality, qualityReason, people (array), shotType, tags (array), compositionScore (number), technicalAdvice (array)`

// DataURL encodes image bytes as a data URL with a sniffed MIME type
func DataURL(image []byte) string {
	return "data:" + mimeType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// DecodeDataURL accepts a data URL or bare base64 and returns the bytes
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image payload: %w", err)
	}
	return data, nil
}

func mimeType(image []byte) string {
	ct := http.DetectContentType(image)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

// extractJSON trims code fences and prose around the outermost JSON value
func extractJSON(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}
