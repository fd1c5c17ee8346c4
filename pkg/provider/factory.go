package provider

import (
	"fmt"

	"github.com/pario-ai/quotaguard/pkg/config"
)

// New builds the Fetcher described by cfg.
func New(cfg config.ProviderConfig) (Fetcher, error) {
	switch cfg.Type {
	case "", "http":
		return NewHTTPFetcher(cfg)
	case "mock":
		return NewMockFetcher(cfg.Name), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
	}
}
