package providers

import (
	"context"
	"net/http"
	"time"

	"trailblazer_ai/internal/models"
)

const (
	defaultMaxTokens   = 2048
	defaultCallTimeout = 60 * time.Second
)

// DefaultModels is the model used for each provider when neither the request nor the credential names one.
var DefaultModels = map[models.ProviderIdentity]string{
	models.ProviderAnthropic: "claude-sonnet-4-20250514",
	models.ProviderOpenAI:    "gpt-4o",
	models.ProviderGoogle:    "gemini-2.0-flash",
	models.ProviderXAI:       "grok-2-vision-1212",
	models.ProviderBedrock:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Usage is the token accounting reported by the vendor.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// Result is the normalized provider response.
type Result struct {
	Text      string
	Usage     Usage
	Model     string
	Latency   time.Duration
	UseCaseID string // set when the call was served by the billing proxy
}

// CallOptions tunes a single call.
type CallOptions struct {
	Model     string
	MaxTokens int
	UseCase   string
	UserID    string
	Headers   map[string]string
	// Properties are forwarded to the billing proxy for attribution.
	Properties map[string]string
}

// StreamChunk is a piece of a streamed response. No client streams today.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider is implemented by each vendor client (Anthropic, OpenAI, Google, xAI, Bedrock).
type Provider interface {
	// Identity returns the vendor this client talks to
	Identity() models.ProviderIdentity

	// DefaultModel returns the model used when CallOptions.Model is empty
	DefaultModel() string

	// AnalyzeImages validates the images, then sends them with the prompt in one user turn
	AnalyzeImages(ctx context.Context, images []models.ImageInput, prompt string, opts CallOptions) (*Result, error)

	// Chat sends a text-only conversation
	Chat(ctx context.Context, messages []Message, opts CallOptions) (*Result, error)

	// ChatStream is not supported by any client and fails with ErrStreamingUnsupported
	ChatStream(ctx context.Context, messages []Message, opts CallOptions) (<-chan StreamChunk, error)

	// Close performs cleanup when the client is no longer needed
	Close() error
}

// WebSearcher is implemented by clients that can ground an answer with web search.
type WebSearcher interface {
	SearchWeb(ctx context.Context, prompt string, opts CallOptions) (*Result, error)
}

// Authenticator signs outgoing requests for HTTP based providers.
type Authenticator interface {
	Apply(req *http.Request) error
}

// ProviderConfig holds the decrypted configuration for creating a client.
// It lives only for the duration of one resolution.
type ProviderConfig struct {
	Identity     models.ProviderIdentity
	APIKey       string
	SecretKey    string // bedrock only
	Region       string // bedrock only
	DefaultModel string
	BaseURL      string
	Timeout      time.Duration
	MaxTokens    int
	IsJudge      bool
	Source       string // where the credential came from, for logs
}

func (c ProviderConfig) model() string {
	if c.DefaultModel != "" {
		return c.DefaultModel
	}
	return DefaultModels[c.Identity]
}

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultCallTimeout
}

func (c ProviderConfig) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func resolveModel(opts CallOptions, fallback string) string {
	if opts.Model != "" {
		return opts.Model
	}
	return fallback
}

func resolveMaxTokens(opts CallOptions, fallback int) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return fallback
}

// callContext bounds a provider call with the configured timeout.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// streamUnsupported is shared by every client.
func streamUnsupported(identity models.ProviderIdentity) (<-chan StreamChunk, error) {
	return nil, &ProviderError{
		Provider: identity,
		Kind:     KindClient,
		Message:  ErrStreamingUnsupported.Error(),
		Err:      ErrStreamingUnsupported,
	}
}
