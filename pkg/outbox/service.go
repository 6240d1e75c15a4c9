package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

// DomainEvent is what a service hands to Emit. Data is one of the payloads
// package types.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	// AggregateType may be left empty; it follows from EventType.
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Emitter is the write surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores the event in the caller's transaction so it commits or rolls
// back together with the domain write.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !event.EventType.IsValid() {
		return errors.New("unknown outbox event type " + string(event.EventType))
	}
	if event.AggregateID == "" {
		return errors.New("aggregate id is required")
	}
	switch want := event.EventType.Aggregate(); event.AggregateType {
	case "":
		event.AggregateType = want
	case want:
	default:
		return fmt.Errorf("%s belongs to %s, not %s", event.EventType, want, event.AggregateType)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	envelope, err := NewEnvelope(event.OccurredAt, event.Actor, logger.RequestID(ctx), event.Data)
	if err != nil {
		return fmt.Errorf("%s envelope: %w", event.EventType, err)
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := &models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
			"correlation_id": envelope.CorrelationID,
		})
		s.logg.Debug(logCtx, "outbox event queued")
	}
	return nil
}
