// Package biometric implements the Biometric Feature Extractor (BFE):
// a pure function mapping a BioSample to a bounded fatigue sub-score, a
// critical-event flag, and a quality bonus the Fusion Core folds into
// its confidence calculation. Shaped like internal/vision's Extractor —
// the same validate-then-score split the teacher uses for every
// per-modality evaluator.
package biometric

import (
	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/scoremath"
)

// Sub-score weights for the "enhanced" path, fixed values.
const (
	weightStress           = 0.40
	weightHRV              = 0.25
	weightHRTrend          = 0.15
	weightBaselineDeviation = 0.20
)

// QualityBonus tells the Fusion Core how much of the confidence
// "bonus" fraction this sample earns from completeness, broken down by
// field so FC can apply its own accumulation/normalization policy
// (design note 9a): the BFE only reports what's present, FC decides how
// much it's worth overall.
type QualityBonus struct {
	HasStressIndex       bool
	HasRMSSD             bool
	HasHRTrend           bool
	HasBaselineDeviation bool
}

// Diagnostics exposes the enhanced-path sub-scores when present.
type Diagnostics struct {
	Enhanced          bool
	StressSub         float64
	HRVSub            float64
	HRTrendSub        float64
	BaselineDevSub    float64
	RawHRRatioSub     float64
}

// Result is the BFE's output.
type Result struct {
	Score        float64
	Critical     bool
	QualityBonus QualityBonus
	Diagnostics  Diagnostics
}

// MaxAgeS is the default freshness budget for a BioSample. No separate
// value is fixed for bio samples; this repository applies the same 5s
// budget used for vision so a biometric feed that has gone silent is
// treated the same way a vision feed going silent is.
const MaxAgeS = 5.0

// Extractor runs the BFE against a clock.Oracle for freshness checks.
type Extractor struct {
	oracle  *clock.Oracle
	maxAgeS float64
}

func New(oracle *clock.Oracle, maxAgeS float64) *Extractor {
	if maxAgeS <= 0 {
		maxAgeS = MaxAgeS
	}
	return &Extractor{oracle: oracle, maxAgeS: maxAgeS}
}

// Extract validates freshness and scores s. Unlike the VFE, the BFE has
// no hard range invariant to reject on beyond freshness: BioSample
// fields are ranges the producer is responsible for, not a reject
// condition for the BFE.
func (e *Extractor) Extract(s model.BioSample) (Result, error) {
	if err := e.oracle.CheckFresh(s.TimestampS, e.maxAgeS); err != nil {
		return Result{}, err
	}
	return Score(s), nil
}

// Score computes the BFE score without touching the clock.
func Score(s model.BioSample) Result {
	enhanced := s.HasStressIndex || s.HasRMSSD || s.HasHRTrend || s.HasBaselineDev

	if !enhanced {
		return rawHRScore(s)
	}

	stressSub := stressSubScore(s)
	hrvSub := hrvSubScore(s)
	trendSub := hrTrendSubScore(s)
	baselineSub := baselineDeviationSubScore(s)

	score := scoremath.WeightedSum(
		[]float64{stressSub, hrvSub, trendSub, baselineSub},
		[]float64{weightStress, weightHRV, weightHRTrend, weightBaselineDeviation},
	)

	return Result{
		Score:    scoremath.Clamp01(score),
		Critical: isCritical(s),
		QualityBonus: QualityBonus{
			HasStressIndex:       s.HasStressIndex,
			HasRMSSD:             s.HasRMSSD,
			HasHRTrend:           s.HasHRTrend,
			HasBaselineDeviation: s.HasBaselineDev,
		},
		Diagnostics: Diagnostics{
			Enhanced:       true,
			StressSub:      stressSub,
			HRVSub:         hrvSub,
			HRTrendSub:     trendSub,
			BaselineDevSub: baselineSub,
		},
	}
}

func rawHRScore(s model.BioSample) Result {
	var sub float64
	if s.HasBaselineHR && s.BaselineHR > 0 {
		diff := absFloat(float64(s.HR) - s.BaselineHR)
		sub = scoremath.Clamp01(diff / s.BaselineHR * 1.5)
	}
	return Result{
		Score:    sub,
		Critical: false,
		Diagnostics: Diagnostics{
			Enhanced:      false,
			RawHRRatioSub: sub,
		},
	}
}

func stressSubScore(s model.BioSample) float64 {
	if !s.HasStressIndex {
		return 0
	}
	return scoremath.Clamp01(s.StressIndex)
}

// hrvSubScore: 1 if RMSSD<20ms; linear down to 0 at baseline HRV; else 0.
func hrvSubScore(s model.BioSample) float64 {
	if !s.HasRMSSD {
		return 0
	}
	if s.RMSSDMs < 20 {
		return 1.0
	}
	if !s.HasBaselineHRV || s.BaselineHRV <= 20 {
		return 0
	}
	if s.RMSSDMs >= s.BaselineHRV {
		return 0
	}
	frac := 1.0 - (s.RMSSDMs-20)/(s.BaselineHRV-20)
	return scoremath.Clamp01(frac)
}

// hrTrendSubScore: 1 if >5 bpm/min; linear down to 0 at trend=0.
func hrTrendSubScore(s model.BioSample) float64 {
	if !s.HasHRTrend {
		return 0
	}
	if s.HRTrendBPMPerMin > 5 {
		return 1.0
	}
	if s.HRTrendBPMPerMin <= 0 {
		return 0
	}
	return scoremath.Clamp01(s.HRTrendBPMPerMin / 5)
}

func baselineDeviationSubScore(s model.BioSample) float64 {
	if !s.HasBaselineDev {
		return 0
	}
	return scoremath.Clamp01(s.BaselineDeviation * 2)
}

// isCritical implements the critical-biometric disjunction.
func isCritical(s model.BioSample) bool {
	if s.HasStressIndex && s.StressIndex >= 0.75 {
		return true
	}
	if s.HasRMSSD && s.RMSSDMs < 20 {
		return true
	}
	if s.HasHRTrend && s.HRTrendBPMPerMin > 5 {
		return true
	}
	return false
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
