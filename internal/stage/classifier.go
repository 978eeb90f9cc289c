// Package stage implements the Stage Classifier (SC): confidence-scaled
// thresholds, hysteresis relative to the current stage, and the dual-path
// (normal rate-limited / critical bypass) transition policy that turns a
// smoothed fusion score into a FatigueStage. Grounded on the same
// threshold-plus-state evaluator shape the teacher's per-event evaluators
// use (wisefido-alarm/internal/evaluator), generalized from a boolean
// alarm/no-alarm verdict to an ordered four-stage classification with
// hysteresis and rate limiting.
package stage

import (
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/scoremath"
)

// Base thresholds and hysteresis band, before sensitivity and confidence
// scaling.
const (
	baseThresholdMild     = 0.25
	baseThresholdModerate = 0.50
	baseThresholdSevere   = 0.75
	hysteresisBand        = 0.10
)

const (
	minStageDurationS      = 2.0
	maxCriticalAlertRateS  = 0.5
)

// SensitivityMultipliers scale all three base thresholds; lower multiplier
// means a stricter (easier to trip) threshold.
var defaultSensitivityMultipliers = map[model.Sensitivity]float64{
	model.SensitivityHigh:   0.7,
	model.SensitivityMedium: 1.0,
	model.SensitivityLow:    1.3,
}

// Window-average weights over the last three smoothed scores, most-recent
// first.
var windowAvgWeights = []float64{0.5, 0.3, 0.2}

// Config parameterizes the Stage Classifier.
type Config struct {
	ThresholdMild         float64
	ThresholdModerate     float64
	ThresholdSevere       float64
	Hysteresis            float64
	MinStageDurationS     float64
	MaxCriticalAlertRateS float64
	SensitivityMultipliers map[model.Sensitivity]float64
}

func DefaultConfig() Config {
	mult := make(map[model.Sensitivity]float64, len(defaultSensitivityMultipliers))
	for k, v := range defaultSensitivityMultipliers {
		mult[k] = v
	}
	return Config{
		ThresholdMild:          baseThresholdMild,
		ThresholdModerate:      baseThresholdModerate,
		ThresholdSevere:        baseThresholdSevere,
		Hysteresis:             hysteresisBand,
		MinStageDurationS:      minStageDurationS,
		MaxCriticalAlertRateS:  maxCriticalAlertRateS,
		SensitivityMultipliers: mult,
	}
}

// Classifier is the Stage Classifier. Not safe for concurrent use — like
// fusion.Core, it owns private per-tick state (the smoothed-score trend
// window and rate-limit timestamps) touched only by the evaluation thread.
type Classifier struct {
	cfg Config

	recentSmoothed []float64 // most-recent-first, capped at 3
	currentStage   model.FatigueStage

	lastStageChangeS   float64
	haveLastChange     bool
	lastCriticalAlertS float64
	haveLastCritical   bool
}

func New(cfg Config) *Classifier {
	if cfg.SensitivityMultipliers == nil {
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg, currentStage: model.StageActive}
}

// Input bundles one tick's fusion output plus the ambient context the
// classifier needs to compute confidence-scaled, sensitivity-scaled
// thresholds and enforce rate limiting.
type Input struct {
	FusionOutput      model.FusionOutput
	PilotSensitivity  model.Sensitivity
	HasPilotSensitivity bool
	TimestampS        float64
}

// Result is the SC's per-tick output.
type Result struct {
	Stage         model.FatigueStage
	AvgScore      float64
	Changed       bool
	CriticalPath  bool
}

// Classify applies the threshold/hysteresis/rate-limit policy and
// returns the (possibly unchanged) current stage.
func (c *Classifier) Classify(in Input) Result {
	c.pushSmoothed(in.FusionOutput.FusionScore)
	avgScore := c.windowAvg()

	sensitivity := in.PilotSensitivity
	if !in.HasPilotSensitivity {
		sensitivity = model.SensitivityMedium
	}
	mult := c.cfg.SensitivityMultipliers[sensitivity]
	if mult == 0 {
		mult = 1.0
	}
	factor := 0.8 + in.FusionOutput.Confidence*0.4

	thresholds := scaledThresholds{
		mild:     c.cfg.ThresholdMild * mult * factor,
		moderate: c.cfg.ThresholdModerate * mult * factor,
		severe:   c.cfg.ThresholdSevere * mult * factor,
	}

	proposed := c.proposeStage(avgScore, thresholds)

	if in.FusionOutput.IsCriticalEvent && (proposed == model.StageModerate || proposed == model.StageSevere) {
		if !c.haveLastCritical || in.TimestampS-c.lastCriticalAlertS >= c.cfg.MaxCriticalAlertRateS {
			c.lastCriticalAlertS = in.TimestampS
			c.haveLastCritical = true
			changed := proposed != c.currentStage
			c.currentStage = proposed
			if changed {
				c.lastStageChangeS = in.TimestampS
				c.haveLastChange = true
			}
			return Result{Stage: c.currentStage, AvgScore: avgScore, Changed: changed, CriticalPath: true}
		}
	}

	if c.haveLastChange && in.TimestampS-c.lastStageChangeS < c.cfg.MinStageDurationS {
		return Result{Stage: c.currentStage, AvgScore: avgScore, Changed: false}
	}

	proposed = c.clampToAdjacent(proposed)
	changed := proposed != c.currentStage
	c.currentStage = proposed
	if changed {
		c.lastStageChangeS = in.TimestampS
		c.haveLastChange = true
	}
	return Result{Stage: c.currentStage, AvgScore: avgScore, Changed: changed}
}

// CurrentStage exposes the classifier's held stage without evaluating a
// new tick.
func (c *Classifier) CurrentStage() model.FatigueStage {
	return c.currentStage
}

type scaledThresholds struct {
	mild, moderate, severe float64
}

// proposeStage picks the stage avgScore would land in under hysteresis
// applied relative to the classifier's current stage: moving up a level
// requires clearing threshold_up(S); staying below threshold_up(S)-H for
// the current stage means dropping out of it.
func (c *Classifier) proposeStage(avgScore float64, t scaledThresholds) model.FatigueStage {
	switch c.currentStage {
	case model.StageActive:
		if avgScore >= t.severe {
			return model.StageSevere
		}
		if avgScore >= t.moderate {
			return model.StageModerate
		}
		if avgScore >= t.mild {
			return model.StageMild
		}
		return model.StageActive
	case model.StageMild:
		if avgScore >= t.severe {
			return model.StageSevere
		}
		if avgScore >= t.moderate {
			return model.StageModerate
		}
		if avgScore < t.mild-c.cfg.Hysteresis {
			return model.StageActive
		}
		return model.StageMild
	case model.StageModerate:
		if avgScore >= t.severe {
			return model.StageSevere
		}
		if avgScore < t.moderate-c.cfg.Hysteresis {
			if avgScore < t.mild-c.cfg.Hysteresis {
				return model.StageActive
			}
			return model.StageMild
		}
		return model.StageModerate
	case model.StageSevere:
		if avgScore < t.severe-c.cfg.Hysteresis {
			if avgScore < t.moderate-c.cfg.Hysteresis {
				if avgScore < t.mild-c.cfg.Hysteresis {
					return model.StageActive
				}
				return model.StageMild
			}
			return model.StageModerate
		}
		return model.StageSevere
	default:
		return c.currentStage
	}
}

// clampToAdjacent enforces at most one level change per evaluation in the
// normal path — direct ACTIVE↔SEVERE is critical-path-only.
func (c *Classifier) clampToAdjacent(proposed model.FatigueStage) model.FatigueStage {
	delta := int(proposed) - int(c.currentStage)
	switch {
	case delta > 1:
		return c.currentStage + 1
	case delta < -1:
		return c.currentStage - 1
	default:
		return proposed
	}
}

func (c *Classifier) pushSmoothed(v float64) {
	c.recentSmoothed = append([]float64{v}, c.recentSmoothed...)
	if len(c.recentSmoothed) > len(windowAvgWeights) {
		c.recentSmoothed = c.recentSmoothed[:len(windowAvgWeights)]
	}
}

// windowAvg computes the weighted average over whatever leading suffix of
// recentSmoothed is populated, renormalizing the weights actually used so
// a partially filled window still yields a proper average (distinct from
// FC's EMA, which intentionally does not renormalize).
func (c *Classifier) windowAvg() float64 {
	n := len(c.recentSmoothed)
	if n == 0 {
		return 0
	}
	weights := windowAvgWeights[:n]
	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}
	sum := scoremath.WeightedSum(c.recentSmoothed, weights)
	return sum / weightSum
}
