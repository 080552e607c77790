// Package secrets resolves credential references found in configuration.
// A value such as "env://GITHUB_PAT" or "vault://secret/data/ralph#github"
// is replaced by the secret it names; any other value is used literally.
// Resolved values are never logged.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSecretNotFound is returned when a credential reference cannot be resolved.
var ErrSecretNotFound = errors.New("secret not found")

// Provider resolves references of one scheme.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Scheme is the reference prefix handled, without "://" (e.g. "vault").
	Scheme() string
	// Resolve returns the secret named by ref, which includes the scheme.
	Resolve(ctx context.Context, ref string) (string, error)
}

// referenceSchemes are treated as references even when no provider is
// registered, so a typo never ends up used as a literal token.
var referenceSchemes = map[string]bool{"env": true, "vault": true}

// Resolver dispatches references to the provider registered for their scheme.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver over the given providers.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Scheme()] = p
	}
	return r
}

// IsReference reports whether value names a secret rather than holding one.
func IsReference(value string) bool {
	scheme, _, ok := strings.Cut(value, "://")
	return ok && referenceSchemes[scheme]
}

// Resolve returns the secret for a reference, or value itself when it is not one.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	scheme, _, ok := strings.Cut(value, "://")
	if !ok {
		return value, nil
	}
	p, registered := r.providers[scheme]
	if !registered {
		if referenceSchemes[scheme] {
			return "", fmt.Errorf("no secret provider configured for %s:// references", scheme)
		}
		return value, nil
	}
	return p.Resolve(ctx, value)
}

// ResolveFields resolves each non-empty field in place. The error names the
// field, never its value.
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]*string) error {
	for name, field := range fields {
		if field == nil || *field == "" {
			continue
		}
		v, err := r.Resolve(ctx, *field)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}
		*field = v
	}
	return nil
}
