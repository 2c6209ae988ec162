package registry

import (
	"context"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
)

// Query describes what a caller needs from the registry.
type Query struct {
	Tenant string
	// Provider restricts candidates to one vendor; empty means any.
	Provider models.ProviderIdentity
	// Judge asks for credentials flagged as the judge model.
	Judge bool
}

// Strategy is one link of the credential fallback chain. It returns decrypted
// candidates in preference order, or ErrNotApplicable.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, q Query) ([]providers.ProviderConfig, error)
}
