package chat

import (
	"bytes"
	"encoding/json"

	"PPRealtime/tools/errs"
)

// Inbound is the client request envelope.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// Outbound is the frame written to a connection.
type Outbound struct {
	Event string `json:"event"`
	AckID string `json:"ackId,omitempty"`
	Data  any    `json:"data"`
}

const EventAck = "ack"

// ParseInbound decodes a client frame, rejecting unknown envelope fields.
func ParseInbound(raw []byte) (*Inbound, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var in Inbound
	if err := dec.Decode(&in); err != nil {
		return nil, errs.ErrValidation.WrapMsg("malformed frame", "err", err.Error())
	}
	if in.Event == "" {
		return nil, errs.ErrValidation.WrapMsg("frame without event")
	}
	return &in, nil
}

// EncodeFrame serializes one outbound frame; it is encoded once per broadcast.
func EncodeFrame(event, ackID string, data any) ([]byte, error) {
	b, err := json.Marshal(Outbound{Event: event, AckID: ackID, Data: data})
	if err != nil {
		return nil, errs.ErrInternal.Wrap(err, "event", event)
	}
	return b, nil
}
