package model

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// RouterOptions configures a Router.
type RouterOptions struct {
	// Providers maps provider names to model adapters.
	Providers map[string]Model
	// Resolve picks the provider for a model name. Defaults to ProviderFor.
	Resolve func(modelName string) string
}

// Router dispatches each request to a provider adapter chosen from the
// request's model name, so one run can address several vendors.
type Router struct {
	providers map[string]Model
	resolve   func(string) string
}

// NewRouter creates a Router.
func NewRouter(optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{
		Providers: map[string]Model{},
		Resolve:   ProviderFor,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{providers: opts.Providers, resolve: opts.Resolve}
}

// ProviderFor infers the provider from common model name prefixes; anything
// not recognized is sent to the OpenAI compatible adapter. An explicit
// "provider:model" prefix always wins.
func ProviderFor(modelName string) string {
	if provider, _, ok := strings.Cut(modelName, ":"); ok && provider != "" {
		return provider
	}
	if strings.HasPrefix(modelName, "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// Generate implements Model.
func (r *Router) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	provider := r.resolve(req.Model)
	m, ok := r.providers[provider]
	if !ok {
		respCh := make(chan Response)
		errCh := make(chan error, 1)
		errCh <- fmt.Errorf("no provider %q registered for model %q", provider, req.Model)
		close(respCh)
		close(errCh)
		return respCh, errCh
	}
	if p, name, ok := strings.Cut(req.Model, ":"); ok && p == provider {
		req.Model = name
	}
	return m.Generate(ctx, req)
}

// Info implements Model.
func (r *Router) Info() Info { return Info{Name: "router", Provider: "router"} }
