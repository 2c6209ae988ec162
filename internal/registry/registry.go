// Package registry resolves which provider client serves a request.
//
// Resolution walks an ordered list of strategies (stored tenant credentials first,
// process environment second) and materializes the first candidate the factory accepts.
// A candidate that fails to decrypt or to build is unavailable, never fatal.
package registry

import (
	"context"
	"errors"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/utils"
)

// Creator materializes clients. providers.Factory implements it.
type Creator interface {
	Create(ctx context.Context, cfg providers.ProviderConfig) (providers.Provider, error)
}

// Resolution is a live client plus where it came from. It carries no secrets.
type Resolution struct {
	Provider providers.Provider
	Identity models.ProviderIdentity
	Model    string
	Source   string
	IsJudge  bool
}

// Registry resolves provider clients through a strategy chain.
type Registry struct {
	factory    Creator
	strategies []Strategy
	logger     *utils.Logger
}

// New creates a registry. Strategies are tried in the given order.
func New(factory Creator, strategies ...Strategy) *Registry {
	return &Registry{
		factory:    factory,
		strategies: strategies,
		logger:     utils.NewLogger("registry"),
	}
}

// ResolveEnabledProvider returns the first working provider for the tenant.
// The bool is false only when nothing is configured anywhere.
func (r *Registry) ResolveEnabledProvider(ctx context.Context, tenant string) (*Resolution, bool, error) {
	return r.resolve(ctx, Query{Tenant: tenant})
}

// ResolveSpecificProvider is ResolveEnabledProvider scoped to one vendor.
func (r *Registry) ResolveSpecificProvider(ctx context.Context, tenant string, identity models.ProviderIdentity) (*Resolution, bool, error) {
	if !identity.Valid() {
		return nil, false, nil
	}
	return r.resolve(ctx, Query{Tenant: tenant, Provider: identity})
}

// ResolveJudgeProvider returns the judge model: stored judge credentials first, then
// the JUDGE_PROVIDER environment fallback. False means verification is not configured.
func (r *Registry) ResolveJudgeProvider(ctx context.Context, tenant string) (*Resolution, bool, error) {
	return r.resolve(ctx, Query{Tenant: tenant, Judge: true})
}

func (r *Registry) resolve(ctx context.Context, q Query) (*Resolution, bool, error) {
	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		candidates, err := strategy.Candidates(ctx, q)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			r.logger.Warn("Credential strategy failed, trying next", "strategy", strategy.Name(), "tenant", q.Tenant, "error", err)
			continue
		}

		for _, cfg := range candidates {
			client, err := r.factory.Create(ctx, cfg)
			if err != nil {
				r.logger.Warn("Provider unavailable, trying next candidate",
					"strategy", strategy.Name(), "provider", cfg.Identity, "error", err)
				continue
			}

			model := cfg.DefaultModel
			if model == "" {
				model = client.DefaultModel()
			}
			r.logger.Debug("Resolved provider", "strategy", strategy.Name(), "provider", cfg.Identity, "model", model, "judge", q.Judge)
			return &Resolution{
				Provider: client,
				Identity: cfg.Identity,
				Model:    model,
				Source:   cfg.Source,
				IsJudge:  q.Judge,
			}, true, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}
