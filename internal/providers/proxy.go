package providers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

// ProxySettings configure routing Anthropic calls through the billing proxy.
type ProxySettings struct {
	BaseURL        string
	Timeout        time.Duration
	UseCaseVersion int
	AccountName    string
	LimitIDs       []string
}

// Enabled reports whether a proxy base URL is configured
func (s ProxySettings) Enabled() bool { return s.BaseURL != "" }

// ProxyClient sends Anthropic work to the billing proxy, which attributes spend per use case.
type ProxyClient struct {
	settings     ProxySettings
	client       *http.Client
	baseURL      string
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	limits       ImageLimits
}

// NewProxyClient creates a proxy client. The vendor key stays with the proxy.
func NewProxyClient(cfg ProviderConfig, settings ProxySettings) (*ProxyClient, error) {
	if !settings.Enabled() {
		return nil, eris.New("billing proxy base URL is required")
	}
	cfg.Identity = models.ProviderAnthropic
	timeout := cfg.timeout()
	if settings.Timeout > 0 {
		timeout = settings.Timeout
	}
	return &ProxyClient{
		settings:     settings,
		client:       newHTTPClient(timeout),
		baseURL:      strings.TrimRight(settings.BaseURL, "/"),
		defaultModel: cfg.model(),
		maxTokens:    cfg.maxTokens(),
		timeout:      timeout,
		limits:       LimitsFor(models.ProviderAnthropic, true),
	}, nil
}

func (p *ProxyClient) Identity() models.ProviderIdentity { return models.ProviderAnthropic }

func (p *ProxyClient) DefaultModel() string { return p.defaultModel }

// ProxyUsage is the usage block returned by the proxy; costs are optional.
type ProxyUsage struct {
	InputTokens  int64    `json:"input_tokens"`
	OutputTokens int64    `json:"output_tokens"`
	Cost         *float64 `json:"cost,omitempty"`
	InputCost    *float64 `json:"input_cost,omitempty"`
	OutputCost   *float64 `json:"output_cost,omitempty"`
}

// ProxyAnalyzeRequest is the body of POST /analyze.
type ProxyAnalyzeRequest struct {
	Images            []string          `json:"images"`
	Model             string            `json:"model,omitempty"`
	Prompt            string            `json:"prompt,omitempty"`
	MaxTokens         int               `json:"max_tokens,omitempty"`
	VehicleInfo       map[string]any    `json:"vehicle_info,omitempty"`
	Context           map[string]any    `json:"context,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	AccountName       string            `json:"account_name,omitempty"`
	LimitIDs          []string          `json:"limit_ids,omitempty"`
	UseCaseName       string            `json:"use_case_name,omitempty"`
	UseCaseVersion    int               `json:"use_case_version,omitempty"`
	UseCaseProperties map[string]string `json:"use_case_properties,omitempty"`
	RequestProperties map[string]string `json:"request_properties,omitempty"`
}

// ProxyTrailFinderRequest is the body of POST /trail-finder.
type ProxyTrailFinderRequest struct {
	Prompt            string            `json:"prompt"`
	Model             string            `json:"model,omitempty"`
	MaxTokens         int               `json:"max_tokens,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	AccountName       string            `json:"account_name,omitempty"`
	LimitIDs          []string          `json:"limit_ids,omitempty"`
	UseCaseName       string            `json:"use_case_name,omitempty"`
	UseCaseVersion    int               `json:"use_case_version,omitempty"`
	UseCaseProperties map[string]string `json:"use_case_properties,omitempty"`
	RequestProperties map[string]string `json:"request_properties,omitempty"`
}

// ProxyResponse is returned by both proxy endpoints.
type ProxyResponse struct {
	Success       bool       `json:"success"`
	Text          string     `json:"text,omitempty"`
	Model         string     `json:"model,omitempty"`
	Usage         ProxyUsage `json:"usage"`
	UseCaseID     string     `json:"use_case_id,omitempty"`
	PayiRequestID string     `json:"payi_request_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// AnalyzeImages posts data URL images and the prompt to /analyze
func (p *ProxyClient) AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts CallOptions) (*Result, error) {
	encoded, err := EncodeImages(ctx, images, p.limits)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(encoded))
	for i, img := range encoded {
		urls[i] = img.DataURL()
	}

	model := resolveModel(opts, p.defaultModel)
	reqProps := map[string]string{
		"image_count": strconv.Itoa(len(images)),
		"model_used":  model,
	}
	for k, v := range opts.Properties {
		reqProps[k] = v
	}

	return p.post(ctx, "/analyze", ProxyAnalyzeRequest{
		Images:            urls,
		Model:             model,
		Prompt:            prompt,
		MaxTokens:         resolveMaxTokens(opts, p.maxTokens),
		UserID:            opts.UserID,
		AccountName:       p.settings.AccountName,
		LimitIDs:          p.settings.LimitIDs,
		UseCaseName:       opts.UseCase,
		UseCaseVersion:    p.settings.UseCaseVersion,
		UseCaseProperties: opts.Properties,
		RequestProperties: reqProps,
	}, model, opts)
}

// Chat flattens the conversation into a single prompt; the proxy only speaks one-turn analysis.
func (p *ProxyClient) Chat(ctx context.Context, messages []Message, opts CallOptions) (*Result, error) {
	model := resolveModel(opts, p.defaultModel)
	return p.post(ctx, "/analyze", ProxyAnalyzeRequest{
		Images:         []string{},
		Model:          model,
		Prompt:         flattenMessages(messages),
		MaxTokens:      resolveMaxTokens(opts, p.maxTokens),
		UserID:         opts.UserID,
		AccountName:    p.settings.AccountName,
		LimitIDs:       p.settings.LimitIDs,
		UseCaseName:    opts.UseCase,
		UseCaseVersion: p.settings.UseCaseVersion,
		RequestProperties: map[string]string{
			"image_count": "0",
			"model_used":  model,
		},
		UseCaseProperties: opts.Properties,
	}, model, opts)
}

// SearchWeb posts to /trail-finder, where the proxy enables web search
func (p *ProxyClient) SearchWeb(ctx context.Context, prompt string, opts CallOptions) (*Result, error) {
	model := resolveModel(opts, p.defaultModel)
	return p.post(ctx, "/trail-finder", ProxyTrailFinderRequest{
		Prompt:            prompt,
		Model:             model,
		MaxTokens:         resolveMaxTokens(opts, p.maxTokens),
		UserID:            opts.UserID,
		AccountName:       p.settings.AccountName,
		LimitIDs:          p.settings.LimitIDs,
		UseCaseName:       opts.UseCase,
		UseCaseVersion:    p.settings.UseCaseVersion,
		UseCaseProperties: opts.Properties,
		RequestProperties: map[string]string{"model_used": model},
	}, model, opts)
}

func (p *ProxyClient) ChatStream(ctx context.Context, messages []Message, opts CallOptions) (<-chan StreamChunk, error) {
	return streamUnsupported(models.ProviderAnthropic)
}

func (p *ProxyClient) post(ctx context.Context, path string, payload any, model string, opts CallOptions) (*Result, error) {
	ctx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	body, err := postJSON(ctx, models.ProviderAnthropic, p.client, p.baseURL+path, payload, nil, opts.Headers)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	var resp ProxyResponse
	if err := decodeResponse(models.ProviderAnthropic, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "billing proxy reported failure"
		}
		return nil, &ProviderError{Provider: models.ProviderAnthropic, Kind: KindUnknown, Message: msg}
	}
	if resp.Model != "" {
		model = resp.Model
	}

	return &Result{
		Text:      resp.Text,
		Usage:     Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
		Model:     model,
		Latency:   latency,
		UseCaseID: resp.UseCaseID,
	}, nil
}

func (p *ProxyClient) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func flattenMessages(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == "system" || m.Role == "assistant" {
			b.WriteString(strings.ToUpper(m.Role[:1]) + m.Role[1:] + ": ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
