package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anp-network/node/internal/config"
)

func TestNewProvider_DefaultsToMockWhenUnconfigured(t *testing.T) {
	prov, err := newProvider(nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", prov.Name())
}

func TestNewProvider_MockByName(t *testing.T) {
	prov, err := newProvider(&config.ProviderConfig{Name: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", prov.Name())
}

func TestNewProvider_AnthropicRequiresAPIKey(t *testing.T) {
	_, err := newProvider(&config.ProviderConfig{Name: "anthropic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestNewProvider_AnthropicWithAPIKey(t *testing.T) {
	prov, err := newProvider(&config.ProviderConfig{Name: "anthropic", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", prov.Name())
}

func TestNewProvider_RejectsUnknownName(t *testing.T) {
	_, err := newProvider(&config.ProviderConfig{Name: "unknown-provider"})
	require.Error(t, err)
}

func TestOpenStore_FileDriver(t *testing.T) {
	cfg := &config.Config{Storage: &config.StorageConfig{Driver: "file", Root: t.TempDir()}}
	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, st)
}

func TestOpenStore_DefaultsToFileDriverWhenUnset(t *testing.T) {
	cfg := &config.Config{Storage: &config.StorageConfig{Root: t.TempDir()}}
	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, st)
}

func TestOpenStore_RejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: &config.StorageConfig{Driver: "mongodb", Root: t.TempDir()}}
	_, err := openStore(context.Background(), cfg)
	require.Error(t, err)
}
