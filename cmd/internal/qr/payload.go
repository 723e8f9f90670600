package qr

import (
	"encoding/json"
	"strings"
)

// Kind tags what a scanned payload carries.
type Kind string

const (
	// KindProofToken is a collection-proof token shown by a user.
	KindProofToken Kind = "proof_token"
	// KindRedemptionCode is a reward code shown to a partner.
	KindRedemptionCode Kind = "redemption_code"
	// KindPlain is an untagged value, e.g. manual text entry.
	KindPlain Kind = "plain"
)

// Payload is the envelope encoded into a QR image. Tagging the kind lets
// a scanner reject a redemption code held up at a collection station
// before hitting the backend.
type Payload struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// EncodePayload serializes a tagged payload for rendering.
func EncodePayload(kind Kind, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidPayload
	}
	switch kind {
	case KindProofToken, KindRedemptionCode, KindPlain:
	default:
		return "", ErrInvalidPayload
	}
	b, err := json.Marshal(Payload{Kind: kind, Value: value})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload parses a scanned string. Untagged input is accepted as
// KindPlain so manually typed tokens and codes keep working.
func DecodePayload(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrInvalidPayload
	}

	if strings.HasPrefix(raw, "{") {
		var p Payload
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err == nil {
			p.Value = strings.TrimSpace(p.Value)
			switch p.Kind {
			case KindProofToken, KindRedemptionCode, KindPlain:
				if p.Value != "" {
					return p, nil
				}
			}
		}
		// Fall through: a brace-leading plain value is still a value.
	}
	return Payload{Kind: KindPlain, Value: raw}, nil
}
