package app

import (
	"testing"

	"github.com/nimasrn/crm-dispatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayProviders_KeepConfigNames(t *testing.T) {
	cfg := &config.Config{
		ProviderSecondaryUrl: "http://sms-b",
		ProviderBackupUrl:    "http://sms-c",
	}

	providers := GatewayProviders(cfg.SmsProviders())
	require.Len(t, providers, 2)
	assert.Equal(t, "secondary", providers[0].Name)
	assert.Equal(t, "http://sms-b", providers[0].URL)
	assert.Equal(t, 100, providers[0].Weight)
	assert.Equal(t, "backup", providers[1].Name)
	assert.Equal(t, 80, providers[1].Weight)
}

func TestGateway_NoProviders(t *testing.T) {
	gw, err := Gateway(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, gw)
}
