package models

import "encoding/json"

// Envelope is the wire and storage format of one encrypted message.
// The server treats ct and iv as opaque text-safe strings; sg, when
// present, is replaced by the server's one-way transform before the
// envelope is stored or broadcast. ts is the server append timestamp,
// distinct from any timestamp inside the encrypted payload.
type Envelope struct {
	CT string  `json:"ct"`
	IV string  `json:"iv"`
	SG *string `json:"sg,omitempty"`
	TS int64   `json:"ts,omitempty"`
}

// ParseEnvelope decodes raw into an Envelope without validating it.
// Unknown fields are dropped.
func ParseEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Encode serializes the envelope back to its wire string.
func (e *Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
