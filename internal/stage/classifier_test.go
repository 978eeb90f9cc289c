package stage

import (
	"testing"

	"fatigue-fusion-engine/internal/model"

	"github.com/stretchr/testify/assert"
)

func tick(score, confidence float64, critical bool, ts float64) Input {
	return Input{
		FusionOutput: model.FusionOutput{
			FusionScore:     score,
			Confidence:      confidence,
			IsCriticalEvent: critical,
		},
		PilotSensitivity:    model.SensitivityMedium,
		HasPilotSensitivity: true,
		TimestampS:          ts,
	}
}

func TestClassify_StaysActive_BelowMildThreshold(t *testing.T) {
	c := New(DefaultConfig())
	res := c.Classify(tick(0.10, 0.8, false, 0))
	assert.Equal(t, model.StageActive, res.Stage)
	assert.False(t, res.Changed)
}

func TestClassify_GradualRise_RespectsRateLimit(t *testing.T) {
	c := New(DefaultConfig())

	// First tick well above MILD with medium sensitivity/confidence: the
	// classifier starts in ACTIVE so nothing has rate-limited it yet.
	res := c.Classify(tick(0.40, 0.8, false, 0))
	assert.Equal(t, model.StageMild, res.Stage)
	assert.True(t, res.Changed)

	// Immediately after, a high score should NOT escalate further —
	// min_stage_duration_s has not elapsed.
	res = c.Classify(tick(0.90, 0.8, false, 0.5))
	assert.Equal(t, model.StageMild, res.Stage)
	assert.False(t, res.Changed)

	// After the rate limit clears, it should be able to move up one level.
	res = c.Classify(tick(0.90, 0.8, false, 2.1))
	assert.Equal(t, model.StageModerate, res.Stage)
}

func TestClassify_CriticalPath_EscalatesBypassingRateLimit(t *testing.T) {
	c := New(DefaultConfig())

	res := c.Classify(tick(0.95, 0.8, true, 0))
	assert.Equal(t, model.StageSevere, res.Stage)
	assert.True(t, res.CriticalPath)
}

func TestClassify_CriticalPath_RespectsOwnCooldown(t *testing.T) {
	c := New(DefaultConfig())

	c.Classify(tick(0.95, 0.8, true, 0))
	res := c.Classify(tick(0.95, 0.8, true, 0.2))
	// second critical tick within 0.5s falls through to normal-path logic,
	// which is itself rate-limited since the critical tick already moved
	// the stage.
	assert.False(t, res.CriticalPath)
}

func TestClassify_Hysteresis_PreventsOscillationAtBoundary(t *testing.T) {
	c := New(DefaultConfig())
	c.Classify(tick(0.40, 0.8, false, 0)) // -> MILD

	// A dip that puts the window average below the MILD threshold (0.28)
	// but not below mild-H (0.18) should not drop out of MILD:
	// (0.5*0.15 + 0.3*0.40) / 0.8 = 0.24375.
	res := c.Classify(tick(0.15, 0.8, false, 2.1))
	assert.Equal(t, model.StageMild, res.Stage)
}

func TestClassify_Recovery_DropsOneLevelAtATime(t *testing.T) {
	c := New(DefaultConfig())
	c.Classify(tick(0.95, 0.8, true, 0)) // critical jump straight to SEVERE

	// Scores low enough to clear every hysteresis band, but the normal
	// path only allows one level change at a time.
	res := c.Classify(tick(0.0, 0.8, false, 3.0))
	assert.Equal(t, model.StageModerate, res.Stage)

	res = c.Classify(tick(0.0, 0.8, false, 6.0))
	assert.Equal(t, model.StageMild, res.Stage)

	res = c.Classify(tick(0.0, 0.8, false, 9.0))
	assert.Equal(t, model.StageActive, res.Stage)
}

func TestClassify_SensitivityMonotone_HighAtLeastSevereAsLow(t *testing.T) {
	high := New(DefaultConfig())
	low := New(DefaultConfig())

	highRes := high.Classify(Input{
		FusionOutput:        model.FusionOutput{FusionScore: 0.30, Confidence: 0.8},
		PilotSensitivity:    model.SensitivityHigh,
		HasPilotSensitivity: true,
		TimestampS:           0,
	})
	lowRes := low.Classify(Input{
		FusionOutput:        model.FusionOutput{FusionScore: 0.30, Confidence: 0.8},
		PilotSensitivity:    model.SensitivityLow,
		HasPilotSensitivity: true,
		TimestampS:           0,
	})

	assert.GreaterOrEqual(t, int(highRes.Stage), int(lowRes.Stage))
}
