// Package ingress decodes bus payloads into typed messages the evaluation
// thread can switch over exhaustively, a tagged-union dispatch standing in
// for the teacher's single-struct IoTDataMessage
// (wisefido-sensor-fusion/internal/models/iot_data.go) now that the FFE's
// bus carries five distinct payload shapes instead of one.
package ingress

import (
	"encoding/json"
	"fmt"

	"fatigue-fusion-engine/internal/model"
)

// MessageKind tags which concrete payload a Message carries.
type MessageKind int

const (
	KindVision MessageKind = iota
	KindBio
	KindAlcohol
	KindPilotProfile
	KindAlertState
)

func (k MessageKind) String() string {
	switch k {
	case KindVision:
		return "vision"
	case KindBio:
		return "bio"
	case KindAlcohol:
		return "alcohol"
	case KindPilotProfile:
		return "pilot_profile"
	case KindAlertState:
		return "alert_state"
	default:
		return "unknown"
	}
}

// Message is the tagged union every ingress adapter produces and the
// evaluation loop switches on exhaustively instead of reflecting over an
// interface{} payload.
type Message interface {
	Kind() MessageKind
}

type VisionMessage struct {
	Sample model.VisionSample
}

func (VisionMessage) Kind() MessageKind { return KindVision }

type BioMessage struct {
	Sample model.BioSample
}

func (BioMessage) Kind() MessageKind { return KindBio }

type AlcoholMessage struct {
	Event model.AlcoholEvent
}

func (AlcoholMessage) Kind() MessageKind { return KindAlcohol }

type PilotProfileMessage struct {
	Profile model.PilotProfile
	Active  bool
}

func (PilotProfileMessage) Kind() MessageKind { return KindPilotProfile }

// AlertStateMessage carries an externally originated system-state request
// (e.g. an authenticator announcing INTRUDER_DETECTED). These are
// dispatched straight to the State Manager's SetState for the carried
// state, validated against its transition graph, rather than through
// VFE/BFE/FC/SC.
type AlertStateMessage struct {
	State   model.SystemState
	Message string
	Service string
}

func (AlertStateMessage) Kind() MessageKind { return KindAlertState }

// DecodeVision unmarshals a data:vision payload.
func DecodeVision(payload []byte) (VisionMessage, error) {
	var s model.VisionSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return VisionMessage{}, fmt.Errorf("decode vision sample: %w", err)
	}
	return VisionMessage{Sample: s}, nil
}

// DecodeBio unmarshals a data:hr payload. BioSample's optional fields
// carry a zero value indistinguishable from "present and zero", so
// presence is detected against the raw object's keys before the typed
// unmarshal runs.
func DecodeBio(payload []byte) (BioMessage, error) {
	var s model.BioSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return BioMessage{}, fmt.Errorf("decode bio sample: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return BioMessage{}, fmt.Errorf("decode bio sample: %w", err)
	}
	_, s.HasRRInterval = raw["rr_interval_s"]
	_, s.HasRMSSD = raw["rmssd_ms"]
	_, s.HasHRTrend = raw["hr_trend_bpm_per_min"]
	_, s.HasBaselineDev = raw["baseline_deviation"]
	_, s.HasStressIndex = raw["stress_index"]
	_, s.HasBaselineHR = raw["baseline_hr"]
	_, s.HasBaselineHRV = raw["baseline_hrv"]

	return BioMessage{Sample: s}, nil
}

// DecodeAlcohol unmarshals a data:alcohol_detected payload.
func DecodeAlcohol(payload []byte) (AlcoholMessage, error) {
	var e model.AlcoholEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return AlcoholMessage{}, fmt.Errorf("decode alcohol event: %w", err)
	}
	return AlcoholMessage{Event: e}, nil
}

// pilotProfileWire mirrors the data:pilot:{id} payload rule: the
// profile plus an `active` flag.
type pilotProfileWire struct {
	model.PilotProfile
	Active bool `json:"active"`
}

// DecodePilotProfile unmarshals a data:pilot:{id} payload.
func DecodePilotProfile(payload []byte) (PilotProfileMessage, error) {
	var w pilotProfileWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return PilotProfileMessage{}, fmt.Errorf("decode pilot profile: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return PilotProfileMessage{}, fmt.Errorf("decode pilot profile: %w", err)
	}
	_, w.HasSensitivity = raw["sensitivity"]

	return PilotProfileMessage{Profile: w.PilotProfile, Active: w.Active}, nil
}
