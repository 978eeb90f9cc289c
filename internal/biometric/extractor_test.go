package biometric

import (
	"errors"
	"testing"

	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_RawHR_NoBaseline(t *testing.T) {
	res := Score(model.BioSample{HR: 72, TimestampS: 0})
	assert.Equal(t, 0.0, res.Score)
	assert.False(t, res.Critical)
	assert.False(t, res.Diagnostics.Enhanced)
}

func TestScore_RawHR_WithBaseline(t *testing.T) {
	res := Score(model.BioSample{
		HR:            100,
		HasBaselineHR: true,
		BaselineHR:    70,
	})
	// |100-70|/70*1.5 = 0.642857
	assert.InDelta(t, 0.6429, res.Score, 1e-3)
}

func TestScore_Enhanced_CriticalStress(t *testing.T) {
	res := Score(model.BioSample{
		HasStressIndex: true,
		StressIndex:    0.9,
	})
	assert.True(t, res.Critical)
	assert.True(t, res.Diagnostics.Enhanced)
}

func TestScore_Enhanced_CriticalRMSSD(t *testing.T) {
	res := Score(model.BioSample{
		HasRMSSD: true,
		RMSSDMs:  15,
	})
	assert.True(t, res.Critical)
	assert.InDelta(t, 0.25, res.Score, 1e-9) // hrv sub (1.0) * weight 0.25
}

func TestScore_Enhanced_CriticalTrend(t *testing.T) {
	res := Score(model.BioSample{
		HasHRTrend:       true,
		HRTrendBPMPerMin: 6,
	})
	assert.True(t, res.Critical)
}

func TestScore_Enhanced_NoCritical(t *testing.T) {
	res := Score(model.BioSample{
		HasStressIndex: true,
		StressIndex:    0.3,
		HasRMSSD:       true,
		RMSSDMs:        60,
		HasBaselineHRV: true,
		BaselineHRV:    80,
	})
	assert.False(t, res.Critical)
	assert.True(t, res.Score >= 0 && res.Score <= 1)
}

func TestScore_ClampedToUnitInterval(t *testing.T) {
	res := Score(model.BioSample{
		HasStressIndex:   true,
		StressIndex:      5,
		HasHRTrend:       true,
		HRTrendBPMPerMin: 100,
		HasBaselineDev:   true,
		BaselineDeviation: 5,
	})
	assert.True(t, res.Score <= 1.0)
}

func TestExtractor_RejectsStaleSample(t *testing.T) {
	fake := clock.NewFake(100)
	ext := New(clock.New(fake), MaxAgeS)

	fake.Set(200)
	_, err := ext.Extract(model.BioSample{HR: 70, TimestampS: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrStaleSample))
}
