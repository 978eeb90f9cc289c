package fusion

import (
	"errors"
	"testing"

	"fatigue-fusion-engine/internal/biometric"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visionInput(s model.VisionSample) (*model.VisionSample, *vision.Result) {
	r := vision.Score(s)
	return &s, &r
}

func bioInput(s model.BioSample) (*model.BioSample, *biometric.Result) {
	r := biometric.Score(s)
	return &s, &r
}

func TestFuse_NoModalities_ReturnsInsufficientModalities(t *testing.T) {
	core := New(DefaultConfig())
	_, err := core.Fuse(Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffeerrors.ErrInsufficientModalities))
}

func TestFuse_VisionOnly_ScoreInRange(t *testing.T) {
	core := New(DefaultConfig())
	vs, vr := visionInput(model.VisionSample{AvgEAR: 0.28, BlinkRatePerMinute: 17, TimestampS: 1})

	out, err := core.Fuse(Input{Vision: vs, VisionRes: vr, TimestampS: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.FusionScore, 0.0)
	assert.LessOrEqual(t, out.FusionScore, 1.0)
	assert.Equal(t, []string{"vision"}, out.ModalitiesPresent)
	// base 0.5 (1 of 2 modalities) + (0.35/1.35 bonus fraction) * 0.5 headroom
	assert.InDelta(t, 0.5+(0.35/1.35)*0.5, out.Confidence, 1e-9)
}

func TestFuse_BothModalities_ConfidenceHigherThanSingle(t *testing.T) {
	core := New(DefaultConfig())
	vs, vr := visionInput(model.VisionSample{AvgEAR: 0.28, TimestampS: 1})
	bs, br := bioInput(model.BioSample{
		HasStressIndex: true, StressIndex: 0.3,
		HasRMSSD: true, RMSSDMs: 60, HasBaselineHRV: true, BaselineHRV: 80,
	})

	out, err := core.Fuse(Input{Vision: vs, VisionRes: vr, Bio: bs, BioRes: br, TimestampS: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Confidence) // base 1.0, already maxed regardless of bonus
}

func TestFuse_CriticalEvent_BypassesSmoothing(t *testing.T) {
	core := New(DefaultConfig())

	// warm up the ring with a few normal ticks
	for i := 0; i < 3; i++ {
		vs, vr := visionInput(model.VisionSample{AvgEAR: 0.30, TimestampS: float64(i)})
		_, err := core.Fuse(Input{Vision: vs, VisionRes: vr, TimestampS: float64(i)})
		require.NoError(t, err)
	}
	require.Equal(t, 3, core.RawRingLen())

	vs, vr := visionInput(model.VisionSample{AvgEAR: 0.14, ClosureDurationS: 1.2, MicrosleepCount: 2, TimestampS: 10})
	out, err := core.Fuse(Input{Vision: vs, VisionRes: vr, TimestampS: 10})
	require.NoError(t, err)

	assert.True(t, out.IsCriticalEvent)
	assert.Equal(t, 1, core.RawRingLen())
}

func TestFuse_NormalPath_EMAUsesPartialSuffixWithoutRenormalizing(t *testing.T) {
	core := New(DefaultConfig())

	vs, vr := visionInput(model.VisionSample{AvgEAR: 0.30, TimestampS: 0})
	out, err := core.Fuse(Input{Vision: vs, VisionRes: vr, TimestampS: 0})
	require.NoError(t, err)

	raw := vr.Score
	// With one sample, EMA = weights[0]*raw = 0.4*raw, not renormalized to 1.0*raw.
	assert.InDelta(t, raw*0.4, out.FusionScore, 1e-9)
}

func TestFuse_SteepRise_StaysWithinUnitInterval(t *testing.T) {
	core := New(DefaultConfig())

	scores := []float64{0.05, 0.15, 0.30, 0.50, 0.75, 0.95}
	var lastOut model.FusionOutput
	for i, target := range scores {
		s := syntheticVisionForScore(target)
		vs, vr := visionInput(s)
		out, err := core.Fuse(Input{Vision: vs, VisionRes: vr, TimestampS: float64(i)})
		require.NoError(t, err)
		lastOut = out
	}

	assert.LessOrEqual(t, lastOut.FusionScore, 1.0)
}

// syntheticVisionForScore crafts an EAR value that falls as target rises,
// so the EAR sub-score (and the VFE score) never decreases with target,
// letting trend tests drive the fusion score up without hand-deriving the
// full sub-score formula. The sub-score does not track target closely.
func syntheticVisionForScore(target float64) model.VisionSample {
	ear := 0.30 - target*0.20
	if ear < 0.01 {
		ear = 0.01
	}
	return model.VisionSample{AvgEAR: ear, TimestampS: 0}
}

func TestFuse_WeightRedistribution_BioOnlyUsesFullWeight(t *testing.T) {
	core := New(DefaultConfig())
	bs, br := bioInput(model.BioSample{HasStressIndex: true, StressIndex: 0.5})

	out, err := core.Fuse(Input{Bio: bs, BioRes: br, TimestampS: 1})
	require.NoError(t, err)

	// Only bio present: fusion score degenerates to the EMA of the bio
	// sub-score alone (weight normalizes to 1.0).
	assert.InDelta(t, br.Score*0.4, out.FusionScore, 1e-9)
}
