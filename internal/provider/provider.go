// Package provider holds the HTTP clients for the supported AI providers.
// Each client normalizes provider failures into *Error so that failure
// classification stays independent of any provider's wire shape.
package provider

import (
	"context"
	"fmt"

	"github.com/org/archpilot/pkg/models"
)

// Error is a normalized provider failure: the HTTP status (0 when the
// request never completed) and the provider's message.
type Error struct {
	Provider   models.Provider
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Client generates a design draft with the given API key. Implementations
// must not retain or log the key.
type Client interface {
	Generate(ctx context.Context, apiKey string, req *models.DesignRequest) (string, error)
}
