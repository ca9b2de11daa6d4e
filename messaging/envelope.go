package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	LineID    string          `json:"line_id"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(kind, source, lineID string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		LineID:    lineID,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Kind == "" {
		return nil, fmt.Errorf("envelope without kind")
	}
	return &e, nil
}

// DecodePayload unmarshals the payload into v.
func (e *Envelope) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Topic kinds.
const (
	KindSnapshot = "snapshot"
	KindDiff     = "diff"
	KindAlert    = "alert"
	KindOrder    = "order"
	KindStock    = "stock"
)

// Topic builds <prefix>/<line>/<kind>.
func Topic(prefix, lineID, kind string) string {
	if prefix == "" {
		return lineID + "/" + kind
	}
	return prefix + "/" + lineID + "/" + kind
}
