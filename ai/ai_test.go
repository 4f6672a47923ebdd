package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agent-api/ollama/client"
	"github.com/camden-git/framesys/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnalysis = `{"quality":"good","qualityReason":"sharp subject","people":["bride"],"shotType":"candid","tags":["dance","night"],"compositionScore":78,"technicalAdvice":["lift shadows"]}`

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(s *recordingSleep) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, Sleep: s.sleep}
}

type scriptedAnalysis struct {
	calls   int
	results []error
	raw     string
}

func (s *scriptedAnalysis) Name() string { return "scripted" }

func (s *scriptedAnalysis) AnalyzeRaw(context.Context, []byte) (json.RawMessage, error) {
	s.calls++
	if s.calls <= len(s.results) && s.results[s.calls-1] != nil {
		return nil, s.results[s.calls-1]
	}
	return json.RawMessage(s.raw), nil
}

func rateLimited() error {
	return &ProviderError{Class: ClassRateLimited, StatusCode: 429, Provider: "scripted", Message: "slow down"}
}

func TestRetryRecoversAfterTwoRateLimits(t *testing.T) {
	s := &recordingSleep{}
	p := &scriptedAnalysis{results: []error{rateLimited(), rateLimited()}, raw: validAnalysis}
	c := NewAnalysisClient(p, testPolicy(s), nil)

	a, err := c.Analyze(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, models.QualityGood, a.Quality)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.delays)
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	s := &recordingSleep{}
	p := &scriptedAnalysis{results: []error{rateLimited(), rateLimited(), rateLimited(), nil}, raw: validAnalysis}
	c := NewAnalysisClient(p, testPolicy(s), nil)

	_, err := c.Analyze(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, p.calls)
	assert.Len(t, s.delays, 2)
}

func TestRetryDoesNotRetryOtherClasses(t *testing.T) {
	for _, cls := range []ErrorClass{ClassPaymentRequired, ClassOther, ClassSchemaViolation} {
		s := &recordingSleep{}
		p := &scriptedAnalysis{results: []error{&ProviderError{Class: cls, Provider: "scripted"}}, raw: validAnalysis}
		c := NewAnalysisClient(p, testPolicy(s), nil)

		_, err := c.Analyze(context.Background(), []byte{1})
		require.Error(t, err)
		assert.Equal(t, 1, p.calls, string(cls))
		assert.Empty(t, s.delays)
	}
}

func TestRetryAbortsWhenSleepIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour}
	err := p.Do(ctx, "test", func(context.Context) error {
		calls++
		return rateLimited()
	})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, calls)
}

func TestMalformedAnalysisIsSchemaViolationWithoutRetry(t *testing.T) {
	cases := map[string]string{
		"not json":        `quality: good`,
		"missing field":   `{"quality":"good","qualityReason":"x","people":[],"shotType":"candid","tags":[],"compositionScore":50}`,
		"null array":      `{"quality":"good","qualityReason":"x","people":null,"shotType":"candid","tags":[],"compositionScore":50,"technicalAdvice":[]}`,
		"bad enum":        `{"quality":"superb","qualityReason":"x","people":[],"shotType":"candid","tags":[],"compositionScore":50,"technicalAdvice":[]}`,
		"bad shot":        `{"quality":"good","qualityReason":"x","people":[],"shotType":"selfie","tags":[],"compositionScore":50,"technicalAdvice":[]}`,
		"score too high":  `{"quality":"good","qualityReason":"x","people":[],"shotType":"candid","tags":[],"compositionScore":101,"technicalAdvice":[]}`,
		"wrong type":      `{"quality":"good","qualityReason":"x","people":"bob","shotType":"candid","tags":[],"compositionScore":50,"technicalAdvice":[]}`,
		"empty":           ``,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s := &recordingSleep{}
			p := &scriptedAnalysis{raw: raw}
			c := NewAnalysisClient(p, testPolicy(s), nil)
			_, err := c.Analyze(context.Background(), []byte{1})
			assert.ErrorIs(t, err, ErrSchemaViolation)
			assert.Equal(t, 1, p.calls)
		})
	}
}

func TestDecodeAnalysisAcceptsBoundaryScores(t *testing.T) {
	for _, score := range []string{"0", "100", "55.5"} {
		raw := strings.Replace(validAnalysis, "78", score, 1)
		a, err := DecodeAnalysis("x", []byte(raw))
		require.NoError(t, err, score)
		assert.Equal(t, []string{"bride"}, a.People)
	}
}

func TestBuildInstructionCanonicalOrder(t *testing.T) {
	styles := models.EnhancementStyles{models.StyleColorPop: true, models.StyleUnblur: true, models.StyleHDR: false}
	assert.Equal(t,
		"Enhance this image with the following improvements: sharpen and remove blur, enhance colors with color pop. Maintain the original composition and subject.",
		BuildInstruction(styles))

	all := models.NewStyles(models.AllStyleKeys...)
	instr := BuildInstruction(all)
	for _, key := range models.AllStyleKeys {
		assert.Contains(t, instr, stylePhrases[key])
	}
}

type countingEnhancer struct {
	calls       int
	instruction string
	out         []byte
}

func (c *countingEnhancer) Name() string { return "counting" }

func (c *countingEnhancer) EnhanceImage(_ context.Context, _ []byte, instruction string) ([]byte, error) {
	c.calls++
	c.instruction = instruction
	return c.out, nil
}

func TestEnhanceRejectsEmptySelectionBeforeCall(t *testing.T) {
	p := &countingEnhancer{out: []byte{9}}
	c := NewEnhancementClient(p, testPolicy(&recordingSleep{}), nil)

	_, err := c.Enhance(context.Background(), []byte{1}, models.EnhancementStyles{models.StyleUnblur: false})
	assert.ErrorIs(t, err, ErrNoStyleSelected)
	_, err = c.Enhance(context.Background(), []byte{1}, nil)
	assert.ErrorIs(t, err, ErrNoStyleSelected)
	_, err = c.Enhance(context.Background(), []byte{1}, models.EnhancementStyles{"sparkle": true})
	assert.ErrorIs(t, err, ErrUnknownStyle)
	assert.Equal(t, 0, p.calls)

	out, err := c.Enhance(context.Background(), []byte{1}, models.NewStyles(models.StyleDenoise))
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, out)
	assert.Contains(t, p.instruction, "reduce noise")

	p.out = nil
	_, err = c.Enhance(context.Background(), []byte{1}, models.NewStyles(models.StyleDenoise))
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ClassRateLimited, ClassifyStatus(429))
	assert.Equal(t, ClassPaymentRequired, ClassifyStatus(402))
	assert.Equal(t, ClassOther, ClassifyStatus(500))

	err := error(NewStatusError("functions", 402, []byte(`{"error":"Payment required"}`)))
	assert.ErrorIs(t, err, ErrPaymentRequired)
	assert.Contains(t, err.Error(), "Payment required")

	err = NewStatusError("gemini", 500, []byte(`{"error":{"message":"internal"}}`))
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "internal")
}

func TestFunctionsProvider(t *testing.T) {
	enhanced := []byte{0xFF, 0xD8, 0xFF, 0xE0, 7}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		_ = json.Unmarshal(body, &req)
		switch r.URL.Path {
		case "/analyze-frame":
			assert.True(t, strings.HasPrefix(req["imageData"].(string), "data:image/"))
			io.WriteString(w, `{"analysis":`+validAnalysis+`}`)
		case "/enhance-frame":
			assert.Contains(t, req["prompt"], "Enhance this image")
			io.WriteString(w, `{"enhancedImage":"data:image/jpeg;base64,`+base64.StdEncoding.EncodeToString(enhanced)+`"}`)
		case "/suggest-categories":
			assert.Len(t, req["frames"], 2)
			io.WriteString(w, `{"suggestions":["Portrait","Dance Floor"]}`)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":"Rate limit exceeded"}`)
		}
	}))
	defer srv.Close()

	p := NewFunctionsProvider(srv.URL+"/", "anon-key", srv.Client())
	ctx := context.Background()
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1}

	raw, err := p.AnalyzeRaw(ctx, img)
	require.NoError(t, err)
	a, err := DecodeAnalysis(p.Name(), raw)
	require.NoError(t, err)
	assert.EqualValues(t, 78, a.CompositionScore)
	assert.Equal(t, "Bearer anon-key", gotAuth)

	out, err := p.EnhanceImage(ctx, img, BuildInstruction(models.NewStyles(models.StyleHDR)))
	require.NoError(t, err)
	assert.Equal(t, enhanced, out)

	cats, err := p.SuggestCategories(ctx, []CategorySample{{Image: img}, {Image: img}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Portrait", "Dance Floor"}, cats)

	p.baseURL = srv.URL + "/unknown"
	_, err = p.AnalyzeRaw(ctx, img)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGeminiProvider(t *testing.T) {
	enhanced := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch r.URL.Path {
		case "/models/gemini-2.5-flash:generateContent":
			if req.GenerationConfig != nil {
				assert.Equal(t, "application/json", req.GenerationConfig["responseMimeType"])
				resp := map[string]interface{}{"candidates": []interface{}{map[string]interface{}{
					"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": "```json\n" + validAnalysis + "\n```"}}},
				}}}
				json.NewEncoder(w).Encode(resp)
				return
			}
			resp := map[string]interface{}{"candidates": []interface{}{map[string]interface{}{
				"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": "- Portrait\n- \"Action\"\n* Close-up"}}},
			}}}
			json.NewEncoder(w).Encode(resp)
		case "/models/gemini-2.5-flash-image:generateContent":
			resp := map[string]interface{}{"candidates": []interface{}{map[string]interface{}{
				"content": map[string]interface{}{"parts": []interface{}{
					map[string]string{"text": "here you go"},
					map[string]interface{}{"inlineData": map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(enhanced)}},
				}},
			}}}
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "secret", srv.Client())
	ctx := context.Background()

	raw, err := p.AnalyzeRaw(ctx, []byte{1})
	require.NoError(t, err)
	_, err = DecodeAnalysis(p.Name(), raw)
	require.NoError(t, err)

	out, err := p.EnhanceImage(ctx, []byte{1}, "x")
	require.NoError(t, err)
	assert.Equal(t, enhanced, out)

	cats, err := p.SuggestCategories(ctx, []CategorySample{{Image: []byte{1}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Portrait", "Action", "Close-up"}, cats)
}

type scriptedCategories struct {
	out []string
	err error
	got []CategorySample
}

func (s *scriptedCategories) Name() string { return "scripted" }

func (s *scriptedCategories) SuggestCategories(_ context.Context, samples []CategorySample) ([]string, error) {
	s.got = samples
	return s.out, s.err
}

func TestCategorySuggester(t *testing.T) {
	var frames []models.Frame
	for i := 0; i < 7; i++ {
		frames = append(frames, models.Frame{ID: string(rune('a' + i)), ImageData: []byte{byte(i)}})
	}
	frames[0].IsEnhanced = true
	frames[0].EnhancedImageData = []byte{42}

	p := &scriptedCategories{out: []string{" Portrait ", "portrait", "", "Action", "A", "B", "C", "D", "E", "F", "G"}}
	s := NewCategorySuggester(p, testPolicy(&recordingSleep{}), nil)

	got := s.Suggest(context.Background(), frames)
	assert.Equal(t, []string{"Portrait", "Action", "A", "B", "C", "D", "E", "F"}, got)
	require.Len(t, p.got, 5)
	assert.Equal(t, []byte{42}, p.got[0].Image)

	p.err = errors.New("boom")
	assert.Equal(t, []string{}, s.Suggest(context.Background(), frames))
	assert.Equal(t, []string{}, s.Suggest(context.Background(), nil))

	none := NewCategorySuggester(CategoryProviderFor(nil, nil), testPolicy(&recordingSleep{}), nil)
	assert.Equal(t, []string{}, none.Suggest(context.Background(), frames))
}

func TestParseCategoryList(t *testing.T) {
	assert.Equal(t, []string{"Portrait", "Landscape"}, ParseCategoryList(`["Portrait","Landscape"]`))
	assert.Equal(t, []string{"Portrait", "Group Photo"}, ParseCategoryList("Sure! [\"Portrait\", \"Group Photo\"]"))
	assert.Equal(t, []string{"Action", "Close-up"}, ParseCategoryList("- Action\n\n* \"Close-up\",\n"))
}

func TestDataURLRoundTrip(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}
	url := DataURL(img)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	back, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, img, back)

	_, err = DecodeDataURL("data:image/png;base64")
	assert.Error(t, err)
}

func TestOllamaProviderSendsStandaloneChats(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0, 3}
	var requests []client.ChatRequest
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req client.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `{"error":"server busy"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   req.Model,
			"done":    true,
			"message": map[string]string{"role": "assistant", "content": "Sure:\n```json\n" + validAnalysis + "\n```"},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaOptions{BaseURL: srv.URL, Model: "llava"}, srv.Client(), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		raw, err := p.AnalyzeRaw(ctx, img)
		require.NoError(t, err)
		a, err := DecodeAnalysis(p.Name(), raw)
		require.NoError(t, err)
		assert.EqualValues(t, 78, a.CompositionScore)
	}

	require.Len(t, requests, 2)
	for _, req := range requests {
		assert.Equal(t, "llava", req.Model)
		require.NotNil(t, req.Stream)
		assert.False(t, *req.Stream)
		require.Len(t, req.Messages, 2, "earlier replies must not be replayed")
		assert.Equal(t, client.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, client.RoleUser, req.Messages[1].Role)
		assert.Contains(t, req.Messages[1].Content, "compositionScore")
		assert.Equal(t, []string{base64.StdEncoding.EncodeToString(img)}, req.Messages[1].Images)
	}

	status = http.StatusTooManyRequests
	_, err := p.AnalyzeRaw(ctx, img)
	assert.ErrorIs(t, err, ErrRateLimited)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "server busy", perr.Message)
}

func TestOllamaEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/api", OllamaEndpoint("", 0))
	assert.Equal(t, "http://gpu-box:8080/api", OllamaEndpoint("http://gpu-box/", 8080))
	assert.Equal(t, "http://127.0.0.1:5555/api", OllamaEndpoint("http://127.0.0.1:5555", 11434))
	assert.Equal(t, "https://llm.example.com:11434/api", OllamaEndpoint("https://llm.example.com/api", 0))
}
