package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

// webSearchMaxUses caps the server side web searches per trail finder call.
const webSearchMaxUses = 10

// messagesCore is the Messages API plumbing shared by the Anthropic and Bedrock clients.
type messagesCore struct {
	identity     models.ProviderIdentity
	client       sdk.Client
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	limits       ImageLimits
}

func newMessagesCore(cfg ProviderConfig, opts ...option.RequestOption) messagesCore {
	// Retries belong to the caller.
	opts = append([]option.RequestOption{option.WithMaxRetries(0)}, opts...)
	return messagesCore{
		identity:     cfg.Identity,
		client:       sdk.NewClient(opts...),
		defaultModel: cfg.model(),
		maxTokens:    cfg.maxTokens(),
		timeout:      cfg.timeout(),
		limits:       LimitsFor(cfg.Identity, false),
	}
}

func (c *messagesCore) Identity() models.ProviderIdentity { return c.identity }

func (c *messagesCore) DefaultModel() string { return c.defaultModel }

// AnalyzeImages sends base64 image blocks followed by the prompt in one user turn
func (c *messagesCore) AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts CallOptions) (*Result, error) {
	encoded, err := EncodeImages(ctx, images, c.limits)
	if err != nil {
		return nil, err
	}

	blocks := make([]sdk.ContentBlockParamUnion, 0, len(encoded)+1)
	for _, img := range encoded {
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
	}
	blocks = append(blocks, sdk.NewTextBlock(prompt))

	return c.send(ctx, sdk.MessageNewParams{
		Messages: []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}, opts)
}

// Chat sends a text-only conversation; system turns become the system prompt
func (c *messagesCore) Chat(ctx context.Context, messages []Message, opts CallOptions) (*Result, error) {
	var params sdk.MessageNewParams
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return c.send(ctx, params, opts)
}

func (c *messagesCore) ChatStream(ctx context.Context, messages []Message, opts CallOptions) (<-chan StreamChunk, error) {
	return streamUnsupported(c.identity)
}

func (c *messagesCore) Close() error { return nil }

func (c *messagesCore) send(ctx context.Context, params sdk.MessageNewParams, opts CallOptions) (*Result, error) {
	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	model := resolveModel(opts, c.defaultModel)
	params.Model = sdk.Model(model)
	params.MaxTokens = int64(resolveMaxTokens(opts, c.maxTokens))

	reqOpts := make([]option.RequestOption, 0, len(opts.Headers))
	for k, v := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, c.classify(err)
	}
	latency := time.Since(start)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if msg.Model != "" {
		model = string(msg.Model)
	}

	return &Result{
		Text:    text.String(),
		Usage:   Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens},
		Model:   model,
		Latency: latency,
	}, nil
}

func (c *messagesCore) classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return ClassifyStatus(c.identity, apiErr.StatusCode, header, []byte(apiErr.RawJSON()))
	}
	return ClassifyTransportError(c.identity, err)
}

// AnthropicClient calls the Anthropic Messages API directly.
type AnthropicClient struct {
	messagesCore
}

// NewAnthropicClient creates a client from an API key. BaseURL overrides the API host.
func NewAnthropicClient(cfg ProviderConfig) (*AnthropicClient, error) {
	cfg.Identity = models.ProviderAnthropic
	if cfg.APIKey == "" {
		return nil, eris.New("api_key is required for anthropic provider")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{messagesCore: newMessagesCore(cfg, opts...)}, nil
}

// SearchWeb answers the prompt with the server side web search tool enabled
func (c *AnthropicClient) SearchWeb(ctx context.Context, prompt string, opts CallOptions) (*Result, error) {
	return c.send(ctx, sdk.MessageNewParams{
		Messages: []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Tools: []sdk.ToolUnionParam{{
			OfWebSearchTool20250305: &sdk.WebSearchTool20250305Param{MaxUses: sdk.Int(webSearchMaxUses)},
		}},
	}, opts)
}
