// Package fusion implements the Fusion Core (FC): weight redistribution
// across present modalities, confidence scoring, and dual-path temporal
// smoothing (critical bypass vs. EMA-with-trend-boost). It is the one
// stateful per-tick component upstream of the stage classifier — it owns
// a private ring buffer of raw scores and a private trend buffer of
// smoothed scores, accessed only from the evaluation goroutine that owns
// it, mirroring how wisefido-sensor-fusion's SensorFusion owns exactly
// the per-card merge state it needs and nothing shared.
package fusion

import (
	"fatigue-fusion-engine/internal/biometric"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/scoremath"
	"fatigue-fusion-engine/internal/vision"
)

// Modality base weights before redistribution.
const (
	weightVisionBase = 0.70
	weightBioBase     = 0.30
)

// EMA weights, most-recent-first, and window sizes. These are the
// configuration surface's defaults; all are overridable via Config.
var defaultEMAWeights = []float64{0.4, 0.3, 0.2, 0.07, 0.03}

const (
	defaultWindowSize      = 5
	defaultTrendWindowSize = 10
	trendSlopeSampleCount  = 5
	trendSlopeThreshold    = 0.2
	trendBoost             = 0.05
)

// Confidence bonus weights. The four enhanced-biometric bonus weights
// (0.35/0.30/0.20/0.15) are fixed; the "vision landmarks present" bonus
// weight has no upstream analogue (the original predictor carries no
// confidence concept at all) so it is assigned the same weight as the
// bio modality's primary signal, stress_index. The achieved bonus is
// normalized against the sum of all five weights so the result is
// always a fraction in [0,1], which is then scaled into the `1 - base`
// headroom. See DESIGN.md for the full rationale.
const (
	bonusWeightVisionLandmarks = 0.35
	bonusWeightStressIndex     = 0.35
	bonusWeightRMSSD           = 0.30
	bonusWeightHRTrend         = 0.20
	bonusWeightBaselineDev     = 0.15
)

var totalBonusWeight = bonusWeightVisionLandmarks + bonusWeightStressIndex + bonusWeightRMSSD + bonusWeightHRTrend + bonusWeightBaselineDev

// Config parameterizes the Fusion Core.
type Config struct {
	WindowSize      int
	TrendWindowSize int
	EMAWeights      []float64
}

// DefaultConfig returns the fixed defaults.
func DefaultConfig() Config {
	weights := make([]float64, len(defaultEMAWeights))
	copy(weights, defaultEMAWeights)
	return Config{
		WindowSize:      defaultWindowSize,
		TrendWindowSize: defaultTrendWindowSize,
		EMAWeights:      weights,
	}
}

// Core is the Fusion Core. Not safe for concurrent use — the evaluation
// goroutine is its only caller.
type Core struct {
	cfg          Config
	raw          *ring
	trend        *ring
}

func New(cfg Config) *Core {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.TrendWindowSize <= 0 {
		cfg.TrendWindowSize = defaultTrendWindowSize
	}
	if len(cfg.EMAWeights) == 0 {
		cfg.EMAWeights = append([]float64{}, defaultEMAWeights...)
	}
	return &Core{
		cfg:   cfg,
		raw:   newRing(cfg.WindowSize),
		trend: newRing(cfg.TrendWindowSize),
	}
}

// Input bundles the optional per-modality samples and their already
// computed VFE/BFE results for one tick.
type Input struct {
	Vision    *model.VisionSample
	VisionRes *vision.Result
	Bio       *model.BioSample
	BioRes    *biometric.Result
	TimestampS float64
}

// Fuse combines vision and bio sub-scores and applies dual-path
// smoothing, returning ffeerrors.ErrInsufficientModalities if neither
// modality is present.
func (c *Core) Fuse(in Input) (model.FusionOutput, error) {
	var modalities []string
	var weightedSum, weightTotal float64
	visionPresent := in.Vision != nil && in.VisionRes != nil
	bioPresent := in.Bio != nil && in.BioRes != nil

	if visionPresent {
		weightedSum += in.VisionRes.Score * weightVisionBase
		weightTotal += weightVisionBase
		modalities = append(modalities, "vision")
	}
	if bioPresent {
		weightedSum += in.BioRes.Score * weightBioBase
		weightTotal += weightBioBase
		modalities = append(modalities, "bio")
	}

	if weightTotal == 0 {
		return model.FusionOutput{}, ffeerrors.ErrInsufficientModalities
	}

	rawScore := scoremath.Clamp01(weightedSum / weightTotal)
	confidence := c.confidence(visionPresent, bioPresent, in.VisionRes, in.BioRes)

	critical := (visionPresent && in.VisionRes.Critical) || (bioPresent && in.BioRes.Critical)

	var emitted float64
	if critical {
		// A critical event empties the smoothing history but the ring
		// must hold exactly the current raw score afterward — clear,
		// then seed it with this tick's score so a subsequent
		// normal-path EMA warms up from the critical reading rather
		// than from empty.
		c.raw.clear()
		c.raw.push(rawScore)
		c.trend.clear()
		emitted = rawScore
	} else {
		c.raw.push(rawScore)
		emitted = c.emaScore()
		emitted = c.applyTrendBoost(emitted)
		c.trend.push(emitted)
	}

	return model.FusionOutput{
		FusionScore:       emitted,
		Confidence:        confidence,
		IsCriticalEvent:   critical,
		ModalitiesPresent: modalities,
		Vision:            in.Vision,
		Bio:               in.Bio,
		TimestampS:        in.TimestampS,
	}, nil
}

// confidence computes the base-plus-normalized-bonus confidence score.
func (c *Core) confidence(visionPresent, bioPresent bool, vres *vision.Result, bres *biometric.Result) float64 {
	modalityCount := 0
	if visionPresent {
		modalityCount++
	}
	if bioPresent {
		modalityCount++
	}
	base := float64(modalityCount) / 2.0

	var achieved float64
	if visionPresent {
		achieved += bonusWeightVisionLandmarks
	}
	if bioPresent {
		if bres.QualityBonus.HasStressIndex {
			achieved += bonusWeightStressIndex
		}
		if bres.QualityBonus.HasRMSSD {
			achieved += bonusWeightRMSSD
		}
		if bres.QualityBonus.HasHRTrend {
			achieved += bonusWeightHRTrend
		}
		if bres.QualityBonus.HasBaselineDeviation {
			achieved += bonusWeightBaselineDev
		}
	}

	bonusFraction := 0.0
	if totalBonusWeight > 0 {
		bonusFraction = achieved / totalBonusWeight
	}

	return scoremath.Clamp01(base + bonusFraction*(1-base))
}

// emaScore applies the configured EMA weights most-recent-first over
// whatever suffix of the raw ring is populated, per design note 9c: no
// renormalization when the buffer is partially filled.
func (c *Core) emaScore() float64 {
	samples := c.raw.mostRecentFirst(c.cfg.WindowSize)
	return scoremath.WeightedSum(samples, c.cfg.EMAWeights)
}

// applyTrendBoost adds +0.05 (clamped to 1.0) when the linear slope of
// the last trendSlopeSampleCount smoothed scores exceeds the threshold.
func (c *Core) applyTrendBoost(smoothed float64) float64 {
	history := append(c.trend.oldestFirst(trendSlopeSampleCount-1), smoothed)
	if len(history) < 2 {
		return smoothed
	}
	if linearSlope(history) > trendSlopeThreshold {
		return scoremath.Clamp01(smoothed + trendBoost)
	}
	return smoothed
}

// linearSlope computes the ordinary least-squares slope of y against
// the index 0..n-1.
func linearSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// RawRingLen exposes the raw-score ring buffer's current length, used by
// invariant tests asserting the ring holds exactly one sample right
// after a critical event.
func (c *Core) RawRingLen() int {
	return c.raw.len()
}
