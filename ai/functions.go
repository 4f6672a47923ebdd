package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/camden-git/framesys/models"
)

// FunctionsProvider talks to the hosted edge-function gateway that fronts the
// vision and image models. It serves analysis, enhancement and categories.
type FunctionsProvider struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewFunctionsProvider expects the functions base URL, e.g. https://x.supabase.co/functions/v1
func NewFunctionsProvider(baseURL, key string, client *http.Client) *FunctionsProvider {
	return &FunctionsProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  newHTTPClient(client),
	}
}

func (p *FunctionsProvider) Name() string { return ProviderFunctions }

func (p *FunctionsProvider) headers() map[string]string {
	if p.key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.key}
}

func (p *FunctionsProvider) AnalyzeRaw(ctx context.Context, image []byte) (json.RawMessage, error) {
	var resp struct {
		Analysis json.RawMessage `json:"analysis"`
	}
	req := map[string]string{"imageData": DataURL(image)}
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/analyze-frame", p.headers(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Analysis) == 0 || string(resp.Analysis) == "null" {
		return nil, schemaError(p.Name(), "response has no analysis")
	}
	return resp.Analysis, nil
}

func (p *FunctionsProvider) EnhanceImage(ctx context.Context, image []byte, instruction string) ([]byte, error) {
	var resp struct {
		EnhancedImage string `json:"enhancedImage"`
	}
	req := map[string]string{"imageData": DataURL(image), "prompt": instruction}
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/enhance-frame", p.headers(), req, &resp); err != nil {
		return nil, err
	}
	if resp.EnhancedImage == "" {
		return nil, schemaError(p.Name(), "response has no enhancedImage")
	}
	img, err := DecodeDataURL(resp.EnhancedImage)
	if err != nil {
		return nil, schemaError(p.Name(), "%v", err)
	}
	return img, nil
}

type functionsFrame struct {
	ImageData string           `json:"imageData"`
	Analysis  *models.Analysis `json:"analysis,omitempty"`
}

func (p *FunctionsProvider) SuggestCategories(ctx context.Context, samples []CategorySample) ([]string, error) {
	frames := make([]functionsFrame, len(samples))
	for i, s := range samples {
		frames[i] = functionsFrame{ImageData: DataURL(s.Image), Analysis: s.Analysis}
	}
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	req := map[string]interface{}{"frames": frames}
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/suggest-categories", p.headers(), req, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}
