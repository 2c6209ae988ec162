package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

const googleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleClient calls the Gemini generateContent endpoint.
type GoogleClient struct {
	auth         Authenticator
	client       *http.Client
	baseURL      string
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	limits       ImageLimits
}

// NewGoogleClient creates a Gemini client. The key travels in the x-goog-api-key header.
func NewGoogleClient(cfg ProviderConfig) (*GoogleClient, error) {
	cfg.Identity = models.ProviderGoogle
	if cfg.APIKey == "" {
		return nil, eris.New("api_key is required for google provider")
	}

	baseURL := googleDefaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &GoogleClient{
		auth:         newHeaderKeyAuth(cfg.APIKey, "x-goog-api-key", ""),
		client:       newHTTPClient(cfg.timeout()),
		baseURL:      baseURL,
		defaultModel: cfg.model(),
		maxTokens:    cfg.maxTokens(),
		timeout:      cfg.timeout(),
		limits:       LimitsFor(models.ProviderGoogle, false),
	}, nil
}

func (p *GoogleClient) Identity() models.ProviderIdentity { return models.ProviderGoogle }

func (p *GoogleClient) DefaultModel() string { return p.defaultModel }

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
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
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// AnalyzeImages sends inline image parts followed by the prompt
func (p *GoogleClient) AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts CallOptions) (*Result, error) {
	encoded, err := EncodeImages(ctx, images, p.limits)
	if err != nil {
		return nil, err
	}

	parts := make([]geminiPart, 0, len(encoded)+1)
	for _, img := range encoded {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MediaType, Data: img.Data}})
	}
	parts = append(parts, geminiPart{Text: prompt})

	return p.generate(ctx, geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}, opts)
}

// Chat maps assistant turns to the "model" role and system turns to the system instruction
func (p *GoogleClient) Chat(ctx context.Context, messages []Message, opts CallOptions) (*Result, error) {
	var req geminiRequest
	var system []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	return p.generate(ctx, req, opts)
}

func (p *GoogleClient) ChatStream(ctx context.Context, messages []Message, opts CallOptions) (<-chan StreamChunk, error) {
	return streamUnsupported(models.ProviderGoogle)
}

func (p *GoogleClient) generate(ctx context.Context, req geminiRequest, opts CallOptions) (*Result, error) {
	ctx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	model := resolveModel(opts, p.defaultModel)
	req.GenerationConfig.MaxOutputTokens = resolveMaxTokens(opts, p.maxTokens)
	endpoint := p.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"

	start := time.Now()
	body, err := postJSON(ctx, models.ProviderGoogle, p.client, endpoint, req, p.auth, opts.Headers)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	var resp geminiResponse
	if err := decodeResponse(models.ProviderGoogle, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		msg := "response contained no candidates"
		kind := KindUnknown
		if resp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + resp.PromptFeedback.BlockReason
			kind = KindClient
		}
		return nil, &ProviderError{Provider: models.ProviderGoogle, Kind: kind, Message: msg}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}

	return &Result{
		Text: text.String(),
		Usage: Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
		Model:   model,
		Latency: latency,
	}, nil
}

func (p *GoogleClient) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
