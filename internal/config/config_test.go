package config

import (
	"os"
	"testing"

	"fatigue-fusion-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, 300, cfg.RedisTTLS)
	assert.Equal(t, 1000, cfg.StateHistoryLimit)
	assert.Equal(t, 0.25, cfg.ThresholdMild)
	assert.Equal(t, 0.50, cfg.ThresholdModerate)
	assert.Equal(t, 0.75, cfg.ThresholdSevere)
	assert.Equal(t, 0.10, cfg.Hysteresis)
	assert.Equal(t, 2.0, cfg.MinStageDurationS)
	assert.Equal(t, 0.5, cfg.MaxCriticalAlertRateS)
	assert.Equal(t, 5, cfg.WindowSize)
	assert.Equal(t, 10, cfg.TrendWindowSize)
	assert.Equal(t, []float64{0.4, 0.3, 0.2, 0.07, 0.03}, cfg.EMAWeights)
	assert.Equal(t, 5.0, cfg.VisionMaxAgeS)
	assert.Equal(t, 10.0, cfg.AlcoholOverrideWindowS)

	assert.Equal(t, 0.7, cfg.SensitivityMultipliers[model.SensitivityHigh])
	assert.Equal(t, 1.0, cfg.SensitivityMultipliers[model.SensitivityMedium])
	assert.Equal(t, 1.3, cfg.SensitivityMultipliers[model.SensitivityLow])

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("REDIS_ADDR", "redis-test:6380")
	os.Setenv("THRESHOLD_MILD", "0.30")
	os.Setenv("STATE_HISTORY_LIMIT", "500")
	os.Setenv("EMA_WEIGHTS", "0.5,0.5")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis-test:6380", cfg.Redis.Addr)
	assert.Equal(t, 0.30, cfg.ThresholdMild)
	assert.Equal(t, 500, cfg.StateHistoryLimit)
	assert.Equal(t, []float64{0.5, 0.5}, cfg.EMAWeights)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestGetEnvFloat_FallsBackOnInvalidValue(t *testing.T) {
	os.Clearenv()
	os.Setenv("THRESHOLD_SEVERE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.ThresholdSevere)

	os.Clearenv()
}
