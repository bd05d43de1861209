package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

func TestConferenceRequestRoundTrip(t *testing.T) {
	room, err := jid.Parse("conf123@conference.example.com")
	require.NoError(t, err)
	ready := true

	req := ConferenceRequest{
		Room:       room,
		Ready:      &ready,
		SessionID:  "sess-1",
		Identity:   "alice",
		Properties: map[string]string{"custom.flag": "true", "unknown-vendor-prop": "42"},
	}

	data, err := EncodeConferenceRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeConferenceRequest(data)
	require.NoError(t, err)

	assert.Equal(t, req.Room.String(), decoded.Room.String())
	assert.Equal(t, *req.Ready, *decoded.Ready)
	assert.Equal(t, req.SessionID, decoded.SessionID)
	assert.Equal(t, req.Properties, decoded.Properties, "unknown properties must forward opaquely, unchanged")
}

func TestConferenceRequestIQEnvelopeRoundTrip(t *testing.T) {
	room, err := jid.Parse("conf123@conference.example.com")
	require.NoError(t, err)

	req := ConferenceRequest{Room: room, Properties: map[string]string{"a": "b"}}

	envelope, err := EncodeConferenceRequestIQ(req, "iq-42")
	require.NoError(t, err)

	decoded, iqID, err := DecodeConferenceRequestIQ(envelope)
	require.NoError(t, err)
	assert.Equal(t, "iq-42", iqID)
	assert.Equal(t, req.Room.String(), decoded.Room.String())
	assert.Equal(t, req.Properties, decoded.Properties)
}

func TestDecodeConferenceRequestIQMissingBody(t *testing.T) {
	_, _, err := DecodeConferenceRequestIQ([]byte(`{"iq":{"id":"x"}}`))
	assert.ErrorIs(t, err, ErrMissingConferenceRequest)
}

func TestConferenceResponseRoundTrip(t *testing.T) {
	focusJID, err := jid.Parse("focus@example.com")
	require.NoError(t, err)

	resp := ConferenceResponse{
		Room:     focusJID,
		Ready:    true,
		FocusJID: &focusJID,
	}

	data, err := EncodeConferenceResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeConferenceResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp.Ready, decoded.Ready)
	assert.Equal(t, resp.FocusJID.String(), decoded.FocusJID.String())
}
