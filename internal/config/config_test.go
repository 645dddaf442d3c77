package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataRoot)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "driving", cfg.MatrixProfile)
	assert.Equal(t, 4, cfg.MatrixMaxRetries)
	assert.Equal(t, time.Second, cfg.MatrixBackoff())
	assert.Equal(t, 30*time.Second, cfg.SolverTimeLimit())
	assert.Equal(t, []string{"SUN", "MON", "TUE", "WED", "THU", "FRI"}, cfg.WorkingDays)
	assert.InDelta(t, 0.20, cfg.BalanceToleranceDflt, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ZR_PORT", "9090")
	t.Setenv("ZR_MATRIX_BASE_URL", "http://osrm.local:5000")
	t.Setenv("ZR_WORKING_DAYS", "mon, tue ,wed")
	t.Setenv("ZR_MATRIX_BACKOFF_SECONDS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "http://osrm.local:5000", cfg.MatrixBaseURL)
	assert.Equal(t, []string{"MON", "TUE", "WED"}, cfg.WorkingDays)
	assert.Equal(t, 500*time.Millisecond, cfg.MatrixBackoff())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("ZR_LOG_LEVEL", "loud")
	_, err := Load()
	assert.Error(t, err)
}
