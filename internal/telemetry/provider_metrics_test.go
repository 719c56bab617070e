package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consentry/consentry/internal/telemetry"
)

func TestNewProviderMetrics(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)
	assert.NotNil(t, pm)
}

func TestProviderMetrics_RecordRequest(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)

	// Should not panic, with or without an error outcome
	pm.RecordRequest("global-vendor-list", "fetch-vendor-list", 120*time.Millisecond, nil)
	pm.RecordRequest("global-vendor-list", "fetch-vendor-list", time.Second, errors.New("fetch failed"))
}

func TestProviderMetrics_RecordCacheHit(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)

	// Should not panic
	pm.RecordCacheHit("global-vendor-list", "fetch-vendor-list")
}

func TestProviderMetrics_RecordCacheMiss(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)

	// Should not panic
	pm.RecordCacheMiss("global-vendor-list", "fetch-vendor-list")
}
