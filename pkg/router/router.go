package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/quotaguard/pkg/config"
)

// ErrUnknownCategory is returned for a category missing from the table.
var ErrUnknownCategory = errors.New("unknown category")

// DefaultCategory labels the route used for requests without a category.
const DefaultCategory = "default"

// Route is the resolved cache TTL and ordered provider chain of a category.
type Route struct {
	Category  string
	TTL       time.Duration
	Providers []config.ProviderConfig
}

// Router resolves operation categories to routes.
type Router struct {
	defaultRoute Route
	routes       map[string]Route
}

// New builds a Router from the given configuration.
func New(cfg *config.Config) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	providerIndex := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providerIndex[p.Name] = p
	}
	defaultChain := []config.ProviderConfig{cfg.Providers[0]}

	r := &Router{
		defaultRoute: Route{Category: DefaultCategory, TTL: cfg.Router.DefaultTTL, Providers: defaultChain},
		routes:       make(map[string]Route, len(cfg.Router.Categories)),
	}
	for _, c := range cfg.Router.Categories {
		chain := defaultChain
		if len(c.Providers) > 0 {
			chain = nil
			for _, name := range c.Providers {
				p, ok := providerIndex[name]
				if !ok {
					return nil, fmt.Errorf("category %q: unknown provider %q", c.Name, name)
				}
				chain = append(chain, p)
			}
		}
		r.routes[c.Name] = Route{Category: c.Name, TTL: c.TTL, Providers: chain}
	}
	return r, nil
}

// Resolve returns the route for category. The empty category resolves to
// the default route.
func (r *Router) Resolve(category string) (Route, error) {
	if category == "" {
		return r.defaultRoute, nil
	}
	route, ok := r.routes[category]
	if !ok {
		return Route{}, fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	return route, nil
}

// MustResolve is Resolve for callers that have already validated category.
// It panics on an unknown category.
func (r *Router) MustResolve(category string) Route {
	route, err := r.Resolve(category)
	if err != nil {
		panic("router: " + err.Error())
	}
	return route
}

// Categories returns the configured category names.
func (r *Router) Categories() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	return out
}
