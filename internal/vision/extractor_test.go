package vision

import (
	"errors"
	"math"
	"testing"

	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_SumToOne(t *testing.T) {
	sum := weightEAR + weightClosure + weightMicrosleep + weightYawn + weightBlink
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScore_NormalBlink(t *testing.T) {
	s := model.VisionSample{
		AvgEAR:             0.28,
		ClosureDurationS:   0.3,
		MicrosleepCount:    0,
		BlinkRatePerMinute: 17,
		TimestampS:         100,
	}
	res := Score(s)
	assert.False(t, res.Critical)
	assert.InDelta(t, 0.035, res.Score, 0.02)
}

func TestScore_CriticalMicrosleep(t *testing.T) {
	s := model.VisionSample{
		AvgEAR:           0.14,
		ClosureDurationS: 0.9,
		MicrosleepCount:  2,
		TimestampS:       100,
	}
	res := Score(s)
	assert.True(t, res.Critical)
}

func TestScore_ExtendedClosure(t *testing.T) {
	s := model.VisionSample{
		AvgEAR:             0.08,
		ClosureDurationS:   1.4,
		MicrosleepCount:    1,
		BlinkRatePerMinute: 3,
		TimestampS:         100,
	}
	res := Score(s)
	assert.True(t, res.Critical)
	assert.Greater(t, res.Score, 0.5)
}

func TestScore_CriticalYawn(t *testing.T) {
	s := model.VisionSample{
		AvgEAR:           0.30,
		YawnCount:        3,
		Yawning:          true,
		YawnDurationS:    2.5,
		TimestampS:       100,
	}
	res := Score(s)
	assert.True(t, res.Critical)
}

func TestScore_ClampedToUnitInterval(t *testing.T) {
	s := model.VisionSample{
		AvgEAR:             0.01,
		ClosureDurationS:   10,
		MicrosleepCount:    50,
		YawnCount:          20,
		Yawning:            true,
		YawnDurationS:      10,
		MAR:                0.9,
		BlinkRatePerMinute: 200,
		TimestampS:         100,
	}
	res := Score(s)
	assert.True(t, res.Score <= 1.0 && res.Score >= 0.0)
	assert.False(t, math.IsNaN(res.Score))
}

func TestExtractor_RejectsInvalidEAR(t *testing.T) {
	fake := clock.NewFake(100)
	ext := New(clock.New(fake), MaxAgeS)

	_, err := ext.Extract(model.VisionSample{AvgEAR: 0, TimestampS: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrInvalidSample))

	_, err = ext.Extract(model.VisionSample{AvgEAR: 1.5, TimestampS: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrInvalidSample))
}

func TestExtractor_RejectsStaleSample(t *testing.T) {
	fake := clock.NewFake(100)
	ext := New(clock.New(fake), MaxAgeS)

	fake.Set(200)
	_, err := ext.Extract(model.VisionSample{AvgEAR: 0.3, TimestampS: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrStaleSample))
}

func TestExtractor_AcceptsFreshValidSample(t *testing.T) {
	fake := clock.NewFake(100)
	ext := New(clock.New(fake), MaxAgeS)

	res, err := ext.Extract(model.VisionSample{AvgEAR: 0.3, TimestampS: 98})
	require.NoError(t, err)
	assert.False(t, res.Critical)
}
