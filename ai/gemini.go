package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	DefaultGeminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiAnalysisModel = "gemini-2.5-flash"
	DefaultGeminiImageModel    = "gemini-2.5-flash-image"
)

// GeminiProvider calls generateContent directly with an API key
type GeminiProvider struct {
	baseURL       string
	apiKey        string
	analysisModel string
	imageModel    string
	client        *http.Client
}

func NewGeminiProvider(baseURL, apiKey string, client *http.Client) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		analysisModel: DefaultGeminiAnalysisModel,
		imageModel:    DefaultGeminiImageModel,
		client:        newHTTPClient(client),
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig map[string]interface{} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var analysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"quality":          map[string]interface{}{"type": "string", "enum": []string{"excellent", "good", "fair"}},
		"qualityReason":    map[string]interface{}{"type": "string"},
		"people":           map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
		"shotType":         map[string]interface{}{"type": "string", "enum": []string{"posed", "candid", "uncertain"}},
		"tags":             map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
		"compositionScore": map[string]interface{}{"type": "number"},
		"technicalAdvice":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
	},
	"required": []string{"quality", "qualityReason", "people", "shotType", "tags", "compositionScore", "technicalAdvice"},
}

func imagePart(image []byte) geminiPart {
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: mimeType(image),
		Data:     base64.StdEncoding.EncodeToString(image),
	}}
}

func (p *GeminiProvider) generate(ctx context.Context, model string, req geminiRequest) (*geminiResponse, error) {
	var resp geminiResponse
	url := p.baseURL + "/models/" + model + ":generateContent"
	headers := map[string]string{"x-goog-api-key": p.apiKey}
	if err := postJSON(ctx, p.client, p.Name(), url, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, schemaError(p.Name(), "response has no candidates")
	}
	return &resp, nil
}

func (r *geminiResponse) text() string {
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p *GeminiProvider) AnalyzeRaw(ctx context.Context, image []byte) (json.RawMessage, error) {
	resp, err := p.generate(ctx, p.analysisModel, geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: analysisPrompt}, imagePart(image)}}},
		GenerationConfig: map[string]interface{}{
			"temperature":      0.4,
			"responseSchema":   analysisSchema,
			"responseMimeType": "application/json",
		},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(extractJSON(resp.text(), '{', '}')), nil
}

func (p *GeminiProvider) EnhanceImage(ctx context.Context, image []byte, instruction string) ([]byte, error) {
	resp, err := p.generate(ctx, p.imageModel, geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: instruction}, imagePart(image)}}},
		GenerationConfig: map[string]interface{}{"temperature": 0.7},
	})
	if err != nil {
		return nil, err
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		img, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, schemaError(p.Name(), "invalid inline image: %v", err)
		}
		return img, nil
	}
	return nil, schemaError(p.Name(), "response has no inline image")
}

func (p *GeminiProvider) SuggestCategories(ctx context.Context, samples []CategorySample) ([]string, error) {
	resp, err := p.generate(ctx, p.analysisModel, geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: categoryPrompt(samples)}}}},
	})
	if err != nil {
		return nil, err
	}
	return ParseCategoryList(resp.text()), nil
}
