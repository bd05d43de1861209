package transport

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMissingConferenceRequest is returned by DecodeConferenceRequestIQ when
// the envelope carries no conferenceRequest body.
var ErrMissingConferenceRequest = errors.New("transport: missing conferenceRequest body")

// EncodeConferenceRequest produces the documented JSON encoding of req
// (spec.md §6): parse(serialize(x)) = x for every well-formed x.
func EncodeConferenceRequest(req ConferenceRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeConferenceRequest parses the documented JSON encoding.
func DecodeConferenceRequest(data []byte) (ConferenceRequest, error) {
	var req ConferenceRequest
	err := json.Unmarshal(data, &req)
	return req, err
}

// EncodeConferenceRequestIQ wraps req in the IQ envelope representation used
// when a ConferenceRequest is carried over the signaling substrate
// (spec.md §6). sjson lets us build that envelope without a matching Go
// struct for the outer IQ shape, which belongs to the substrate adapter, not
// the core.
func EncodeConferenceRequestIQ(req ConferenceRequest, iqID string) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	envelope, err := sjson.SetBytes(nil, "iq.id", iqID)
	if err != nil {
		return nil, err
	}
	envelope, err = sjson.SetBytes(envelope, "iq.type", "set")
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(envelope, "conferenceRequest", body)
}

// DecodeConferenceRequestIQ extracts the ConferenceRequest and the
// originating IQ id from an envelope built by EncodeConferenceRequestIQ.
// gjson lets us pull just the conferenceRequest subtree out of an envelope
// whose other fields belong to the substrate adapter.
func DecodeConferenceRequestIQ(data []byte) (ConferenceRequest, string, error) {
	iqID := gjson.GetBytes(data, "iq.id").String()

	body := gjson.GetBytes(data, "conferenceRequest")
	if !body.Exists() {
		return ConferenceRequest{}, iqID, ErrMissingConferenceRequest
	}

	var req ConferenceRequest
	err := json.Unmarshal([]byte(body.Raw), &req)
	return req, iqID, err
}

// EncodeConferenceResponse produces the documented JSON encoding of resp.
func EncodeConferenceResponse(resp ConferenceResponse) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeConferenceResponse parses the documented JSON encoding.
func DecodeConferenceResponse(data []byte) (ConferenceResponse, error) {
	var resp ConferenceResponse
	err := json.Unmarshal(data, &resp)
	return resp, err
}
