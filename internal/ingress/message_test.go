package ingress

import (
	"testing"

	"fatigue-fusion-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVision_RoundTrips(t *testing.T) {
	payload := []byte(`{"avg_ear":0.28,"closure_duration_s":0.3,"microsleep_count":0,"blink_rate_per_minute":17,"timestamp_s":100}`)
	msg, err := DecodeVision(payload)
	require.NoError(t, err)
	assert.Equal(t, KindVision, msg.Kind())
	assert.Equal(t, 0.28, msg.Sample.AvgEAR)
	assert.Equal(t, 17.0, msg.Sample.BlinkRatePerMinute)
}

func TestDecodeBio_DetectsOptionalFieldPresence(t *testing.T) {
	payload := []byte(`{"hr":72,"stress_index":0,"timestamp_s":100}`)
	msg, err := DecodeBio(payload)
	require.NoError(t, err)
	assert.True(t, msg.Sample.HasStressIndex)
	assert.Equal(t, 0.0, msg.Sample.StressIndex)
	assert.False(t, msg.Sample.HasRMSSD)
}

func TestDecodeBio_RawOnlyHasNoOptionalFlags(t *testing.T) {
	payload := []byte(`{"hr":72,"timestamp_s":100}`)
	msg, err := DecodeBio(payload)
	require.NoError(t, err)
	assert.False(t, msg.Sample.HasStressIndex)
	assert.False(t, msg.Sample.HasRMSSD)
	assert.False(t, msg.Sample.HasHRTrend)
	assert.False(t, msg.Sample.HasBaselineDev)
}

func TestDecodePilotProfile_DetectsSensitivityPresence(t *testing.T) {
	payload := []byte(`{"id":"p1","baseline_hr":65,"baseline_hrv":80,"sensitivity":"HIGH","active":true}`)
	msg, err := DecodePilotProfile(payload)
	require.NoError(t, err)
	assert.True(t, msg.Profile.HasSensitivity)
	assert.Equal(t, model.SensitivityHigh, msg.Profile.Sensitivity)
	assert.True(t, msg.Active)
}

func TestDecodeAlcohol(t *testing.T) {
	payload := []byte(`{"detection_time":99.5,"timestamp_s":100}`)
	msg, err := DecodeAlcohol(payload)
	require.NoError(t, err)
	assert.Equal(t, 99.5, msg.Event.DetectionTimeS)
}

func TestMessageKind_StringNames(t *testing.T) {
	assert.Equal(t, "vision", KindVision.String())
	assert.Equal(t, "alert_state", KindAlertState.String())
}
