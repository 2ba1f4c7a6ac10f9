package adapters

import (
	"testing"

	"github.com/smallbiznis/logoforge/internal/payment/adapters/lemonsqueezy"
	"github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	registry := NewRegistry(lemonsqueezy.NewFactory(), nil)
	assert.Equal(t, []string{lemonsqueezy.Provider}, registry.Providers())

	adapter, err := registry.Adapter(" LemonSqueezy ", domain.AdapterConfig{WebhookSecret: "whsec"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(lemonsqueezy.NewFactory())

	_, err := registry.Adapter("stripe", domain.AdapterConfig{WebhookSecret: "whsec"})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var empty *Registry
	_, err = empty.Adapter(lemonsqueezy.Provider, domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestRegistryPropagatesFactoryConfigErrors(t *testing.T) {
	registry := NewRegistry(lemonsqueezy.NewFactory())

	_, err := registry.Adapter(lemonsqueezy.Provider, domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
