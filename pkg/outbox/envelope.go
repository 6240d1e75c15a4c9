package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version written by Emit. Readers accept
// every version up to it.
const EnvelopeVersion = 1

// ActorRef identifies who caused the event: the customer placing an order or
// the admin moving it along.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what the publisher
// ships to Redis and RabbitMQ unchanged.
type PayloadEnvelope struct {
	Version    int       `json:"version"`
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	Actor      *ActorRef `json:"actor,omitempty"`
	// CorrelationID is the request id of the HTTP call that caused the event.
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope wraps data under a fresh event id.
func NewEnvelope(occurredAt time.Time, actor *ActorRef, correlationID string, data any) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode event data: %w", err)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	env := PayloadEnvelope{
		Version:       EnvelopeVersion,
		EventID:       uuid.NewString(),
		OccurredAt:    occurredAt.UTC(),
		Actor:         actor,
		CorrelationID: correlationID,
		Data:          raw,
	}
	return env, env.Validate()
}

// DecodeEnvelope parses and validates a stored envelope.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, env.Validate()
}

func (e PayloadEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("envelope event id %q: %w", e.EventID, err)
	}
	if e.OccurredAt.IsZero() {
		return errors.New("envelope has no occurredAt")
	}
	if d := bytes.TrimSpace(e.Data); len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return errors.New("envelope has no data")
	}
	return nil
}
