// Package model holds the data shared by every Fatigue Fusion Engine
// stage: raw sensor samples, fusion/classification output, and the
// system-wide state snapshot.
package model

import "time"

// VisionSample is one camera-frame worth of eye/mouth geometry and
// derived microsleep/yawn counters. Produced by an external vision
// pipeline and owned by the ingress adapter that decodes it; the FFE
// never mutates a VisionSample after decode.
type VisionSample struct {
	AvgEAR             float64 `json:"avg_ear"`              // eye aspect ratio, (0,1]
	MAR                float64 `json:"mar"`                  // mouth aspect ratio, [0,1]
	EyesClosed         bool    `json:"eyes_closed"`
	ClosureDurationS   float64 `json:"closure_duration_s"`   // seconds, [0, inf)
	MicrosleepCount    int     `json:"microsleep_count"`
	BlinkRatePerMinute float64 `json:"blink_rate_per_minute"`
	Yawning            bool    `json:"yawning"`
	YawnCount          int     `json:"yawn_count"`
	YawnDurationS      float64 `json:"yawn_duration_s"`
	TimestampS         float64 `json:"timestamp_s"`
}

// BioSample is one biometric-sensor reading. RRIntervalS, RMSSDMs,
// HRTrendBPMPerMin, BaselineDeviation, StressIndex, BaselineHR and
// BaselineHRV are all optional ("enhanced") fields — a sample may carry
// only HR.
type BioSample struct {
	HR                int     `json:"hr"` // bpm, [0,255]
	HasRRInterval     bool    `json:"-"`
	RRIntervalS       float64 `json:"rr_interval_s,omitempty"`
	HasRMSSD          bool    `json:"-"`
	RMSSDMs           float64 `json:"rmssd_ms,omitempty"`
	HasHRTrend        bool    `json:"-"`
	HRTrendBPMPerMin  float64 `json:"hr_trend_bpm_per_min,omitempty"`
	HasBaselineDev    bool    `json:"-"`
	BaselineDeviation float64 `json:"baseline_deviation,omitempty"` // [0,1]
	HasStressIndex    bool    `json:"-"`
	StressIndex       float64 `json:"stress_index,omitempty"` // [0,1]
	HasBaselineHR     bool    `json:"-"`
	BaselineHR        float64 `json:"baseline_hr,omitempty"`
	HasBaselineHRV    bool    `json:"-"`
	BaselineHRV       float64 `json:"baseline_hrv,omitempty"`
	TimestampS        float64 `json:"timestamp_s"`
}

// Sensitivity scales the stage classifier's thresholds.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "HIGH"
	SensitivityMedium Sensitivity = "MEDIUM"
	SensitivityLow    Sensitivity = "LOW"
)

// PilotProfile carries the per-pilot baselines the BFE needs plus an
// opaque sensitivity hint for the stage classifier. Fields outside this
// set are opaque to the FFE: the bus decoder drops them, and Opaque is
// carried only through the Postgres repository.
type PilotProfile struct {
	ID             string         `json:"id"`
	BaselineHR     float64        `json:"baseline_hr"`
	BaselineHRV    float64        `json:"baseline_hrv"`
	HasSensitivity bool           `json:"-"`
	Sensitivity    Sensitivity    `json:"sensitivity,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Opaque         map[string]any `json:"-"`
}

// FusionOutput is the Fusion Core's per-tick result.
type FusionOutput struct {
	FusionScore       float64       `json:"fusion_score"`
	Confidence        float64       `json:"confidence"`
	IsCriticalEvent   bool          `json:"is_critical_event"`
	ModalitiesPresent []string      `json:"modalities_present"`
	Vision            *VisionSample `json:"vision,omitempty"`
	Bio               *BioSample    `json:"bio,omitempty"`
	TimestampS        float64       `json:"timestamp_s"`
}

// FatigueStage is the Stage Classifier's output domain.
type FatigueStage int

const (
	StageActive FatigueStage = iota
	StageMild
	StageModerate
	StageSevere
)

func (s FatigueStage) String() string {
	switch s {
	case StageActive:
		return "ACTIVE"
	case StageMild:
		return "MILD"
	case StageModerate:
		return "MODERATE"
	case StageSevere:
		return "SEVERE"
	default:
		return "UNKNOWN"
	}
}

// SystemState is the State Manager's authoritative system state.
type SystemState string

const (
	StateScanning          SystemState = "SCANNING"
	StateIntruderDetected  SystemState = "INTRUDER_DETECTED"
	StateMonitoringActive  SystemState = "MONITORING_ACTIVE"
	StateAlertMild         SystemState = "ALERT_MILD"
	StateAlertModerate     SystemState = "ALERT_MODERATE"
	StateAlertSevere       SystemState = "ALERT_SEVERE"
	StateAlcoholDetected   SystemState = "ALCOHOL_DETECTED"
	StateSystemError       SystemState = "SYSTEM_ERROR"
	StateSystemCrashed     SystemState = "SYSTEM_CRASHED"
)

// StateSnapshot is an immutable point-in-time view of the system state,
// the unit the State Manager's history ring stores and subscribers
// receive.
type StateSnapshot struct {
	State      SystemState    `json:"state"`
	Message    string         `json:"message"`
	TimestampS float64        `json:"timestamp_s"`
	HasPilotID bool           `json:"-"`
	PilotID    string         `json:"pilot_id,omitempty"`
	Service    string         `json:"service"`
	Data       map[string]any `json:"data,omitempty"`
	// Sequence is a monotonic commit counter, stable even across
	// snapshots that share a TimestampS (two commits in the same
	// wall-clock second never collide on ordering).
	Sequence uint64 `json:"sequence"`
}

// AlcoholEvent is the payload behind data:alcohol_detected.
type AlcoholEvent struct {
	DetectionTimeS float64 `json:"detection_time"`
	TimestampS     float64 `json:"timestamp_s"`
}
