package types

import (
	"errors"
	"strings"
)

// Provider is a place an environment variable has to exist.
type Provider string

const (
	ProviderLocal   Provider = "local"   // ProviderLocal is the developer's .env.local.
	ProviderGitHub  Provider = "github"  // ProviderGitHub is the source host's secret store.
	ProviderVercel  Provider = "vercel"  // ProviderVercel is the hosting platform.
	ProviderRailway Provider = "railway" // ProviderRailway is the runtime platform.
)

// Scope is a deployment environment.
type Scope string

const (
	ScopeDevelopment Scope = "development"
	ScopePreview     Scope = "preview"
	ScopeProduction  Scope = "production"
)

// AllProviders is the default provider set for requests that name none.
func AllProviders() []Provider {
	return []Provider{ProviderLocal, ProviderGitHub, ProviderVercel, ProviderRailway}
}

// AllScopes is the default scope set for requests that name none.
func AllScopes() []Scope {
	return []Scope{ScopeDevelopment, ScopePreview, ScopeProduction}
}

// EnvVarRequest asks for one environment variable.
type EnvVarRequest struct {
	Name              string     `json:"name"`
	Value             string     `json:"value,omitempty"`
	Description       string     `json:"description,omitempty"`
	RequiredProviders []Provider `json:"requiredProviders,omitempty"`
	Scopes            []Scope    `json:"scopes,omitempty"`
}

// ErrEmptyEnvName is returned by Validate for a blank name.
var ErrEmptyEnvName = errors.New("environment variable name cannot be empty")

// Validate checks the request has a name.
func (r EnvVarRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyEnvName
	}
	return nil
}

// Merge folds other into r: providers and scopes are unioned in first-seen
// order and a non-empty value from other wins.
func (r EnvVarRequest) Merge(other EnvVarRequest) EnvVarRequest {
	out := r
	if other.Value != "" {
		out.Value = other.Value
	}
	if out.Description == "" {
		out.Description = other.Description
	}
	out.RequiredProviders = union(r.RequiredProviders, other.RequiredProviders)
	out.Scopes = union(r.Scopes, other.Scopes)
	return out
}

func union[T comparable](a, b []T) []T {
	seen := make(map[T]struct{}, len(a)+len(b))
	out := make([]T, 0, len(a)+len(b))
	for _, list := range [][]T{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Normalize flattens the current and legacy shapes of an env_request into a
// uniform list. Per-variable providers and scopes fall back to the action's
// legacy lists, then to every provider and scope.
func (a *EnvRequestAction) Normalize() ([]EnvVarRequest, error) {
	providers := a.Providers
	if len(providers) == 0 {
		providers = AllProviders()
	}
	scopes := a.Scopes
	if len(scopes) == 0 {
		scopes = AllScopes()
	}

	if len(a.Variables) > 0 {
		out := make([]EnvVarRequest, 0, len(a.Variables))
		for _, v := range a.Variables {
			if err := v.Validate(); err != nil {
				return nil, err
			}
			v.Name = strings.TrimSpace(v.Name)
			if len(v.RequiredProviders) == 0 {
				v.RequiredProviders = providers
			}
			if len(v.Scopes) == 0 {
				v.Scopes = scopes
			}
			out = append(out, v)
		}
		return out, nil
	}

	if len(a.Names) == 0 {
		return nil, errors.New("env_request missing variables[] or names[]")
	}
	out := make([]EnvVarRequest, 0, len(a.Names))
	for _, name := range a.Names {
		req := EnvVarRequest{Name: strings.TrimSpace(name), RequiredProviders: providers, Scopes: scopes}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// EnvMergeReport lists which keys an env merge added and which it left alone.
type EnvMergeReport struct {
	Added           []string `json:"added"`
	Kept            []string `json:"kept"`
	VercelLinked    bool     `json:"vercelLinked"`
	PendingSyncPath string   `json:"pendingSyncPath,omitempty"`
}
