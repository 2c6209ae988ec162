package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	xaiDefaultBaseURL    = "https://api.x.ai/v1"
)

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
// xAI reuses it with a different base URL and allow-list.
type OpenAIClient struct {
	identity     models.ProviderIdentity
	auth         Authenticator
	client       *http.Client
	baseURL      string
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	limits       ImageLimits
}

// NewOpenAIClient creates a client for api.openai.com
func NewOpenAIClient(cfg ProviderConfig) (*OpenAIClient, error) {
	cfg.Identity = models.ProviderOpenAI
	return newOpenAICompatible(cfg, openAIDefaultBaseURL)
}

// NewXAIClient creates a client for api.x.ai
func NewXAIClient(cfg ProviderConfig) (*OpenAIClient, error) {
	cfg.Identity = models.ProviderXAI
	return newOpenAICompatible(cfg, xaiDefaultBaseURL)
}

func newOpenAICompatible(cfg ProviderConfig, defaultBaseURL string) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, eris.Errorf("api_key is required for %s provider", cfg.Identity)
	}

	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		identity:     cfg.Identity,
		auth:         newHeaderKeyAuth(cfg.APIKey, "Authorization", "Bearer "),
		client:       newHTTPClient(cfg.timeout()),
		baseURL:      baseURL,
		defaultModel: cfg.model(),
		maxTokens:    cfg.maxTokens(),
		timeout:      cfg.timeout(),
		limits:       LimitsFor(cfg.Identity, false),
	}, nil
}

func (p *OpenAIClient) Identity() models.ProviderIdentity { return p.identity }

func (p *OpenAIClient) DefaultModel() string { return p.defaultModel }

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// AnalyzeImages sends the images as data URLs followed by the prompt in one user turn
func (p *OpenAIClient) AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts CallOptions) (*Result, error) {
	encoded, err := EncodeImages(ctx, images, p.limits)
	if err != nil {
		return nil, err
	}

	parts := make([]openAIContentPart, 0, len(encoded)+1)
	for _, img := range encoded {
		parts = append(parts, openAIContentPart{
			Type:     "image_url",
			ImageURL: &openAIImageURL{URL: img.DataURL(), Detail: "high"},
		})
	}
	parts = append(parts, openAIContentPart{Type: "text", Text: prompt})

	return p.complete(ctx, []openAIMessage{{Role: "user", Content: parts}}, opts)
}

// Chat sends a text-only conversation
func (p *OpenAIClient) Chat(ctx context.Context, messages []Message, opts CallOptions) (*Result, error) {
	msgs := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return p.complete(ctx, msgs, opts)
}

func (p *OpenAIClient) ChatStream(ctx context.Context, messages []Message, opts CallOptions) (<-chan StreamChunk, error) {
	return streamUnsupported(p.identity)
}

func (p *OpenAIClient) complete(ctx context.Context, msgs []openAIMessage, opts CallOptions) (*Result, error) {
	ctx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	model := resolveModel(opts, p.defaultModel)
	req := openAIRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: resolveMaxTokens(opts, p.maxTokens),
	}

	start := time.Now()
	body, err := postJSON(ctx, p.identity, p.client, p.baseURL+"/chat/completions", req, p.auth, opts.Headers)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	var resp openAIResponse
	if err := decodeResponse(p.identity, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.identity, Kind: KindUnknown, Message: "response contained no choices"}
	}

	usage := extractUsageFromResponse(body)
	if resp.Model != "" {
		model = resp.Model
	}
	return &Result{
		Text:    resp.Choices[0].Message.Content,
		Usage:   Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens},
		Model:   model,
		Latency: latency,
	}, nil
}

// Close cleans up resources
func (p *OpenAIClient) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// UsageInfo contains detailed token usage information from the response
type UsageInfo struct {
	InputTokens     int64
	OutputTokens    int64
	CachedTokens    int64
	ReasoningTokens int64
	TotalTokens     int64
}

// extractUsageFromResponse extracts detailed token usage from response
func extractUsageFromResponse(body []byte) *UsageInfo {
	var response struct {
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
			TotalTokens  int64 `json:"total_tokens"`
			// chat completions field names
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			PromptTokensDetails struct {
				CachedTokens int64 `json:"cached_tokens"`
			} `json:"prompt_tokens_details"`
			CompletionTokensDetails struct {
				ReasoningTokens int64 `json:"reasoning_tokens"`
			} `json:"completion_tokens_details"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return &UsageInfo{}
	}

	usage := &UsageInfo{
		InputTokens:     response.Usage.InputTokens,
		OutputTokens:    response.Usage.OutputTokens,
		CachedTokens:    response.Usage.PromptTokensDetails.CachedTokens,
		ReasoningTokens: response.Usage.CompletionTokensDetails.ReasoningTokens,
		TotalTokens:     response.Usage.TotalTokens,
	}

	if usage.InputTokens == 0 && response.Usage.PromptTokens > 0 {
		usage.InputTokens = response.Usage.PromptTokens
	}
	if usage.OutputTokens == 0 && response.Usage.CompletionTokens > 0 {
		usage.OutputTokens = response.Usage.CompletionTokens
	}

	return usage
}
