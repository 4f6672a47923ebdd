package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/ollama/client"
)

const ollamaSystemPrompt = "You are a visual analysis assistant that grades video frames as photographs. Always respond with valid JSON only."

// OllamaOptions locates a local ollama server and vision model
type OllamaOptions struct {
	BaseURL string
	Port    int
	Model   string
}

// OllamaProvider runs analysis on a local vision model. Every call is a
// standalone chat of one system and one user message.
type OllamaProvider struct {
	client *client.OllamaClient
	model  *core.Model
	logger *slog.Logger
}

func NewOllamaProvider(opts OllamaOptions, httpClient *http.Client, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Model == "" {
		opts.Model = "llama3.2-vision:11b"
	}
	endpoint := OllamaEndpoint(opts.BaseURL, opts.Port)

	return &OllamaProvider{
		client: client.NewClient(
			client.WithBaseURL(endpoint),
			client.WithHTTPClient(newHTTPClient(httpClient)),
		),
		model:  &core.Model{ID: opts.Model},
		logger: logger.With("component", "ai.ollama", "model", opts.Model, "endpoint", endpoint),
	}
}

// OllamaEndpoint joins a server address and port into the API root. A port
// already present in baseURL wins.
func OllamaEndpoint(baseURL string, port int) string {
	if baseURL == "" {
		baseURL = "http://localhost"
	}
	if port == 0 {
		port = 11434
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s:%d/api", strings.TrimRight(baseURL, "/"), port)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	if !strings.HasSuffix(u.Path, "/api") {
		u.Path += "/api"
	}
	return u.String()
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) AnalyzeRaw(ctx context.Context, image []byte) (json.RawMessage, error) {
	messages := []*core.Message{
		{Role: core.SystemMessageRole, Content: ollamaSystemPrompt},
		{
			Role:    core.UserMessageRole,
			Content: analysisPrompt + analysisJSONHint,
			Images: []*core.Image{{
				MimeType:       mimeType(image),
				Base64Encoding: base64.StdEncoding.EncodeToString(image),
			}},
		},
	}

	p.logger.Debug("sending frame to ollama", "bytes", len(image))
	resp, err := p.client.Chat(ctx, &client.ChatRequest{
		Model:    p.model.ID,
		Messages: toOllamaMessages(messages),
	})
	if err != nil {
		return nil, classifyOllamaError(p.Name(), err)
	}
	if resp == nil {
		return nil, schemaError(p.Name(), "no response received from model")
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return nil, otherError(p.Name(), errors.New("empty model reply"))
	}
	return json.RawMessage(extractJSON(content, '{', '}')), nil
}

func toOllamaMessages(messages []*core.Message) []*client.Message {
	out := make([]*client.Message, 0, len(messages))
	for _, m := range messages {
		var images []string
		for _, img := range m.Images {
			images = append(images, img.Base64Encoding)
		}
		out = append(out, &client.Message{
			Role:    client.Role(m.Role),
			Content: m.Content,
			Images:  images,
		})
	}
	return out
}

// classifyOllamaError recovers the status code from the client's
// "request failed with status N: body" errors.
func classifyOllamaError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	const marker = "request failed with status "
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		rest := msg[i+len(marker):]
		codeText, body, _ := strings.Cut(rest, ": ")
		if code, convErr := strconv.Atoi(codeText); convErr == nil {
			return NewStatusError(provider, code, []byte(body))
		}
	}
	return otherError(provider, err)
}
