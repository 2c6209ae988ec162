package providers

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

// ProviderCreator is a function that creates a provider instance
type ProviderCreator func(ctx context.Context, cfg ProviderConfig) (Provider, error)

// Factory turns a resolved ProviderConfig into a live client.
type Factory struct {
	mu       sync.RWMutex
	creators map[models.ProviderIdentity]ProviderCreator
	proxy    ProxySettings
}

// NewFactory creates a factory with every built-in provider registered.
// When proxy is enabled, Anthropic calls are routed through the billing proxy.
func NewFactory(proxy ProxySettings) *Factory {
	f := &Factory{
		creators: make(map[models.ProviderIdentity]ProviderCreator),
		proxy:    proxy,
	}
	for _, identity := range models.AllProviders() {
		f.creators[identity] = f.builtin(identity)
	}
	return f
}

func (f *Factory) builtin(identity models.ProviderIdentity) ProviderCreator {
	switch identity {
	case models.ProviderAnthropic:
		return func(ctx context.Context, cfg ProviderConfig) (Provider, error) {
			if f.proxy.Enabled() {
				return NewProxyClient(cfg, f.proxy)
			}
			return NewAnthropicClient(cfg)
		}
	case models.ProviderOpenAI:
		return func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return NewOpenAIClient(cfg) }
	case models.ProviderXAI:
		return func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return NewXAIClient(cfg) }
	case models.ProviderGoogle:
		return func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return NewGoogleClient(cfg) }
	case models.ProviderBedrock:
		return func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return NewBedrockClient(ctx, cfg) }
	}
	return nil
}

// Register overrides the creator for one identity. Tests use it to plug in fakes.
func (f *Factory) Register(identity models.ProviderIdentity, creator ProviderCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[identity] = creator
}

// Create materializes a client for cfg.Identity
func (f *Factory) Create(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if !cfg.Identity.Valid() {
		return nil, eris.Errorf("unsupported provider type: %q", cfg.Identity)
	}

	f.mu.RLock()
	creator, exists := f.creators[cfg.Identity]
	f.mu.RUnlock()

	if !exists || creator == nil {
		return nil, eris.Errorf("unsupported provider type: %s", cfg.Identity)
	}

	provider, err := creator(ctx, cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create provider %s", cfg.Identity)
	}
	return provider, nil
}

// Proxied reports whether Anthropic calls go through the billing proxy
func (f *Factory) Proxied() bool { return f.proxy.Enabled() }

// SupportedTypes returns the registered identities
func (f *Factory) SupportedTypes() []models.ProviderIdentity {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]models.ProviderIdentity, 0, len(f.creators))
	for _, identity := range models.AllProviders() {
		if _, ok := f.creators[identity]; ok {
			types = append(types, identity)
		}
	}
	return types
}
