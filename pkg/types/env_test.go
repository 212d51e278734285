package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvVarRequestMerge(t *testing.T) {
	a := EnvVarRequest{
		Name:              "API_KEY",
		Value:             "old",
		RequiredProviders: []Provider{ProviderLocal, ProviderVercel},
		Scopes:            []Scope{ScopeDevelopment},
	}
	b := EnvVarRequest{
		Name:              "API_KEY",
		RequiredProviders: []Provider{ProviderVercel, ProviderGitHub},
		Scopes:            []Scope{ScopeProduction},
	}

	merged := a.Merge(b)
	assert.Equal(t, "old", merged.Value, "empty value must not clobber")
	assert.Equal(t, []Provider{ProviderLocal, ProviderVercel, ProviderGitHub}, merged.RequiredProviders)
	assert.Equal(t, []Scope{ScopeDevelopment, ScopeProduction}, merged.Scopes)

	b.Value = "new"
	assert.Equal(t, "new", a.Merge(b).Value)
}

func TestEnvRequestNormalize(t *testing.T) {
	t.Run("variables get defaults", func(t *testing.T) {
		a := &EnvRequestAction{Variables: []EnvVarRequest{{Name: " DB_URL "}}}
		got, err := a.Normalize()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "DB_URL", got[0].Name)
		assert.Equal(t, AllProviders(), got[0].RequiredProviders)
		assert.Equal(t, AllScopes(), got[0].Scopes)
	})

	t.Run("legacy names use legacy providers", func(t *testing.T) {
		a := &EnvRequestAction{Names: []string{"A", "B"}, Providers: []Provider{ProviderLocal}}
		got, err := a.Normalize()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []Provider{ProviderLocal}, got[1].RequiredProviders)
		assert.Equal(t, AllScopes(), got[1].Scopes)
	})

	t.Run("empty request", func(t *testing.T) {
		_, err := (&EnvRequestAction{}).Normalize()
		assert.ErrorContains(t, err, "missing variables")
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := (&EnvRequestAction{Variables: []EnvVarRequest{{Name: "  "}}}).Normalize()
		assert.ErrorIs(t, err, ErrEmptyEnvName)
	})
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusDone, false},
		{StatusRunning, StatusDone, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusQueued, true},
		{StatusPaused, StatusQueued, true},
		{StatusPaused, StatusRunning, false},
		{StatusFailed, StatusQueued, true},
		{StatusDone, StatusQueued, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
