// Package vision implements the Vision Feature Extractor (VFE): a pure
// function mapping a VisionSample to a bounded fatigue sub-score plus a
// critical-event flag. It owns no state and performs no I/O — the same
// "pure transform over a typed struct" shape the teacher's evaluators
// (wisefido-alarm/internal/evaluator/event*.go) use for threshold logic,
// generalized here from an event/no-event verdict to a continuous score.
package vision

import (
	"fmt"

	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/scoremath"
)

// Sub-score weights, fixed values. They must sum to 1.0 — tested in
// extractor_test.go.
const (
	weightEAR        = 0.40
	weightClosure    = 0.25
	weightMicrosleep = 0.15
	weightYawn       = 0.15
	weightBlink      = 0.05
)

// Yawn sub-score internal weights (frequency/duration/MAR).
const (
	yawnWeightFrequency = 0.50
	yawnWeightDuration  = 0.30
	yawnWeightMAR       = 0.20
)

// Diagnostics exposes every intermediate sub-score for observability and
// testing, mirroring the trigger-data snapshots the teacher attaches to
// every alarm event (wisefido-alarm/internal/models/alarm_event.go's
// TriggerData) so an operator can see *why* a score landed where it did.
type Diagnostics struct {
	EARSub        float64
	ClosureSub    float64
	MicrosleepSub float64
	YawnSub       float64
	BlinkSub      float64
}

// Result is the VFE's output.
type Result struct {
	Score        float64
	Critical     bool
	Diagnostics  Diagnostics
}

// MaxAgeS is the default freshness budget for a VisionSample.
const MaxAgeS = 5.0

// Extractor runs the VFE against a clock.Oracle for freshness and range
// validation.
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

// Extract validates s and, if valid and fresh, scores it. It returns
// ffeerrors.ErrInvalidSample or ffeerrors.ErrStaleSample (via errors.Is)
// on rejection; callers skip the tick and increment a counter.
func (e *Extractor) Extract(s model.VisionSample) (Result, error) {
	if s.AvgEAR <= 0 || s.AvgEAR > 1 {
		return Result{}, fmt.Errorf("avg_ear %.4f out of (0,1]: %w", s.AvgEAR, ffeerrors.ErrInvalidSample)
	}
	if err := e.oracle.CheckFresh(s.TimestampS, e.maxAgeS); err != nil {
		return Result{}, err
	}
	return Score(s), nil
}

// Score computes the VFE sub-scores and critical flag without touching
// the clock — used directly by tests and by callers that have already
// validated freshness.
func Score(s model.VisionSample) Result {
	earSub := earSubScore(s.AvgEAR)
	closureSub := closureSubScore(s.ClosureDurationS)
	microsleepSub := microsleepSubScore(s.MicrosleepCount)
	yawnSub := yawnSubScore(s)
	blinkSub := blinkSubScore(s.BlinkRatePerMinute)

	score := scoremath.WeightedSum(
		[]float64{earSub, closureSub, microsleepSub, yawnSub, blinkSub},
		[]float64{weightEAR, weightClosure, weightMicrosleep, weightYawn, weightBlink},
	)

	return Result{
		Score:    scoremath.Clamp01(score),
		Critical: isCritical(s),
		Diagnostics: Diagnostics{
			EARSub:        earSub,
			ClosureSub:    closureSub,
			MicrosleepSub: microsleepSub,
			YawnSub:       yawnSub,
			BlinkSub:      blinkSub,
		},
	}
}

func earSubScore(earVal float64) float64 {
	var sub float64
	switch {
	case earVal < 0.15:
		sub = 1.0
	case earVal < 0.20:
		sub = 0.8 + ((0.20-earVal)/0.05)*0.2
	case earVal < 0.25:
		sub = ((0.25 - earVal) / 0.05) * 0.8
	default:
		sub = (0.30 - earVal) / 0.20
		if sub < 0 {
			sub = 0
		}
	}
	return scoremath.Clamp01(sub)
}

func closureSubScore(durationS float64) float64 {
	switch {
	case durationS < 0.5:
		return 0
	case durationS < 1.0:
		return 0.5
	case durationS < 3.0:
		return 0.5 + (durationS-1.0)*0.25
	default:
		return 1.0
	}
}

func microsleepSubScore(count int) float64 {
	return scoremath.Clamp01(float64(count) * 0.3)
}

func yawnSubScore(s model.VisionSample) float64 {
	freq := yawnFrequencySub(s.YawnCount)
	duration := yawnDurationSub(s.Yawning, s.YawnDurationS)
	mar := yawnMARSub(s.MAR)

	return scoremath.Clamp01(
		freq*yawnWeightFrequency + duration*yawnWeightDuration + mar*yawnWeightMAR,
	)
}

func yawnFrequencySub(count int) float64 {
	switch {
	case count == 0:
		return 0
	case count <= 2:
		return float64(count) * 0.3
	case count <= 4:
		return 0.6 + float64(count-3)*0.2
	default:
		return 1.0
	}
}

func yawnDurationSub(yawning bool, durationS float64) float64 {
	if !yawning {
		return 0
	}
	switch {
	case durationS < 1.0:
		return 0.2
	case durationS < 2.0:
		return durationS * 0.5
	case durationS < 4.0:
		return 0.5 + (durationS-2.0)*0.25
	default:
		return 1.0
	}
}

func yawnMARSub(mar float64) float64 {
	switch {
	case mar < 0.35:
		return 0
	case mar < 0.5:
		return (mar - 0.35) * 3.33
	case mar < 0.6:
		return (mar - 0.5) * 10.0
	default:
		return 1.0
	}
}

func blinkSubScore(ratePerMin float64) float64 {
	switch {
	case ratePerMin < 5:
		return 1.0
	case ratePerMin < 10:
		return (10 - ratePerMin) / 5
	case ratePerMin > 40:
		return (ratePerMin - 40) / 20
	default:
		return 0
	}
}

// isCritical implements the critical-vision disjunction.
func isCritical(s model.VisionSample) bool {
	if s.ClosureDurationS >= 1.0 {
		return true
	}
	if s.AvgEAR < 0.15 {
		return true
	}
	if s.MicrosleepCount >= 2 {
		return true
	}
	if s.YawnCount >= 3 && s.YawnDurationS > 2.0 {
		return true
	}
	return false
}
