// Package invoke executes external AI-provider calls across ordered
// credential tiers: the user's own key first when present, then the
// configured system key. Tiers are attempted strictly sequentially so the
// provider is never double-invoked for one request.
package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/org/archpilot/internal/provider"
	"github.com/org/archpilot/pkg/models"
	"github.com/rs/zerolog/log"
)

// Tier names a credential source.
type Tier string

const (
	TierUser   Tier = "user"
	TierSystem Tier = "system"
)

// ErrTiersExhausted marks the exhaustion condition: every tier failed for
// a reason attributable to the credential itself (quota or authorization).
// The caller should prompt the user to supply a personal key.
var ErrTiersExhausted = errors.New("all provider credentials exhausted")

// Result reports which tier served the call.
type Result struct {
	Response       string
	Tier           Tier
	AllTiersFailed bool
}

// Invoker runs tiered provider calls.
type Invoker struct {
	clients    map[models.Provider]provider.Client
	systemKeys map[models.Provider]string
}

// NewInvoker creates an Invoker over the given clients and system-tier keys.
func NewInvoker(clients map[models.Provider]provider.Client, systemKeys map[models.Provider]string) *Invoker {
	return &Invoker{clients: clients, systemKeys: systemKeys}
}

// Invoke attempts the call on the user tier (when userKey is non-empty),
// then on the system tier. A single failure on the user tier always falls
// through, whatever its class; there is no retry within a tier. On final
// failure the original error propagates, wrapped in ErrTiersExhausted when
// its class is credential-related.
func (iv *Invoker) Invoke(ctx context.Context, req *models.DesignRequest, userKey string) (*Result, error) {
	client, ok := iv.clients[req.Provider]
	if !ok {
		return nil, fmt.Errorf("no client for provider %q", req.Provider)
	}

	var userErr error
	if userKey != "" {
		response, err := client.Generate(ctx, userKey, req)
		if err == nil {
			return &Result{Response: response, Tier: TierUser}, nil
		}
		userErr = err
		// Fall through to the system tier regardless of class. Only the
		// classification is logged, never the key or the prompt.
		log.Warn().
			Str("provider", string(req.Provider)).
			Str("class", classifyErr(err).String()).
			Msg("user-tier call failed, falling back to system tier")
	}

	systemKey := iv.systemKeys[req.Provider]
	if systemKey == "" {
		if userErr != nil {
			return nil, fmt.Errorf("no system credential configured for provider %q: %w", req.Provider, userErr)
		}
		return nil, fmt.Errorf("no system credential configured for provider %q", req.Provider)
	}

	response, err := client.Generate(ctx, systemKey, req)
	if err == nil {
		return &Result{Response: response, Tier: TierSystem}, nil
	}

	if class := classifyErr(err); class == ClassRateLimited || class == ClassAuthFailed {
		return &Result{Tier: TierSystem, AllTiersFailed: true},
			fmt.Errorf("%w: %w", ErrTiersExhausted, err)
	}
	return &Result{Tier: TierSystem}, err
}

// classifyErr normalizes an error into a Class. Provider failures carry a
// status and message; everything else, context deadlines included, is Other.
func classifyErr(err error) Class {
	var pErr *provider.Error
	if errors.As(err, &pErr) {
		return Classify(pErr.StatusCode, pErr.Message)
	}
	return ClassOther
}
