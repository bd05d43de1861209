package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromStringParsesHierarchicalConfig(t *testing.T) {
	doc := `
conference:
  maxAudioSenders: 25
  maxVideoSenders: 25
  singleParticipantTimeout: 20
bridge:
  failureResetThreshold: 60
  highStressThreshold: 0.5
codec:
  opus:
    enabled: true
    payloadType: 111
rtpExtensions:
  abs-send-time:
    enabled: true
    id: 3
`
	cfg, err := LoadFromString(doc)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Conference.MaxAudioSenders)
	assert.Equal(t, 60, cfg.Bridge.FailureResetThresholdSeconds)
	assert.True(t, cfg.Codecs["opus"].Enabled)
	assert.Equal(t, 111, cfg.Codecs["opus"].PayloadType)
	assert.Equal(t, 3, cfg.RTPExtensions["abs-send-time"].ID)
}

func TestLegacyFlatKeyOverridesHierarchical(t *testing.T) {
	doc := `
conference:
  maxAudioSenders: 25
legacy:
  conference.maxAudioSenders: "5"
  codec.opus.enabled: "false"
`
	cfg, err := LoadFromString(doc)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Conference.MaxAudioSenders, "legacy key must win over the hierarchical value")
	assert.False(t, cfg.Codecs["opus"].Enabled)
}

func TestUnrecognizedLegacyKeyRejected(t *testing.T) {
	doc := `
legacy:
  conference.totallyMadeUp: "1"
`
	_, err := LoadFromString(doc)
	assert.Error(t, err)
}

func TestInvalidBridgeHighStressThresholdRejected(t *testing.T) {
	doc := `
bridge:
  highStressThreshold: 1.5
`
	_, err := LoadFromString(doc)
	assert.Error(t, err)
}

func TestConferenceConfigToDomainConvertsSecondsToDuration(t *testing.T) {
	cc := ConferenceConfig{SingleParticipantTimeoutSeconds: 20, SessionExpirationTimeoutSeconds: 15, InviteConcurrency: 4}
	domain := cc.ToDomain(0.6)
	assert.Equal(t, int64(4), domain.InviteConcurrency)
	assert.Equal(t, float64(0.6), domain.BridgeHighStressThreshold)
	assert.Equal(t, int64(20), int64(domain.SingleParticipantTimeout.Seconds()))
}
