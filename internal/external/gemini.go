package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tourism/internal/types"
)

const (
	geminiAPIBase      = "https://generativelanguage.googleapis.com"
	defaultGeminiModel = "gemini-1.5-flash"
)

// GeminiConfig holds the configuration for creating a GeminiAnalyzer.
type GeminiConfig struct {
	APIKey   types.SecretString
	Model    string
	Endpoint string // defaults to geminiAPIBase
	Logger   *slog.Logger
}

// GeminiAnalyzer describes tourist photos with the Gemini generateContent API.
type GeminiAnalyzer struct {
	base     *BaseClient
	apiKey   types.SecretString
	model    string
	endpoint string
	logger   *slog.Logger
}

// NewGeminiAnalyzer creates a GeminiAnalyzer. Image analysis is slow, so
// httpClient should allow for a timeout of tens of seconds.
func NewGeminiAnalyzer(httpClient *http.Client, cfg GeminiConfig) *GeminiAnalyzer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"gemini",
		RetryPolicy{MaxRetries: 1, MinWait: time.Second, MaxWait: 4 * time.Second},
		"TourismAssistant/1.0",
		logger,
		WithUpstreamCode(types.ErrCodeUpstreamAnalysis),
	)
	return NewGeminiAnalyzerWithBase(base, cfg)
}

// NewGeminiAnalyzerWithBase creates a GeminiAnalyzer around an existing BaseClient.
func NewGeminiAnalyzerWithBase(base *BaseClient, cfg GeminiConfig) *GeminiAnalyzer {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = geminiAPIBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiAnalyzer{base: base, apiKey: cfg.APIKey, model: model, endpoint: endpoint, logger: logger}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Analyze sends the image and a short prompt and returns the model's text.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error) {
	mimeType, data, err := splitImage(req.ImageBase64)
	if err != nil {
		return nil, err
	}
	req = req.Normalized()
	lang := req.Language

	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{
		Parts: []geminiPart{
			{Text: buildPrompt(req.Kind, lang)},
			{InlineData: &geminiInlineData{MimeType: mimeType, Data: data}},
		},
	}}})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode analysis request", err)
	}

	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.endpoint, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build analysis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey.Unmask())

	start := time.Now()
	resp, err := g.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.WarnContext(ctx, "gemini rejected request", "status", resp.StatusCode, "body", string(snippet))
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis,
			fmt.Sprintf("analysis provider returned %d", resp.StatusCode), nil)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "failed to decode analysis response", err)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis provider returned no content", nil)
	}

	g.logger.DebugContext(ctx, "image analyzed", "model", g.model, "duration_ms", time.Since(start).Milliseconds())
	return &types.AnalysisResult{Text: text.String(), Model: g.model, Language: lang}, nil
}

// splitImage accepts raw base64 or a data URL and returns the MIME type and
// the bare base64 payload.
func splitImage(raw string) (string, string, error) {
	mimeType := "image/jpeg"
	data := strings.TrimSpace(raw)
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return "", "", types.NewAppError(types.ErrCodeValidationInvalidImage, "malformed data URL", nil)
		}
		header = strings.TrimPrefix(header, "data:")
		header = strings.TrimSuffix(header, ";base64")
		if strings.HasPrefix(header, "image/") {
			mimeType = header
		}
		data = payload
	}
	if data == "" {
		return "", "", types.NewAppError(types.ErrCodeValidationInvalidImage, "image is empty", nil)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return "", "", types.NewAppError(types.ErrCodeValidationInvalidImage, "image is not valid base64", err)
	}
	return mimeType, data, nil
}

var languageInstructions = map[string]string{
	"ja":    "Answer in Japanese.",
	"en":    "Answer in English.",
	"ko":    "Answer in Korean.",
	"zh":    "Answer only in Simplified Chinese.",
	"zh-tw": "Answer only in Traditional Chinese.",
}

func buildPrompt(kind types.AnalysisKind, lang string) string {
	var subject string
	switch kind {
	case types.AnalysisKindMenu:
		subject = "Read the menu or signboard in this photo, translate the dishes and prices, and suggest phrases for ordering."
	default:
		subject = "Identify the place or shop in this photo and describe it for a traveller."
	}
	instruction, ok := languageInstructions[lang]
	if !ok {
		instruction = languageInstructions[types.DefaultAnalysisLanguage]
	}
	return subject + " " + instruction
}
