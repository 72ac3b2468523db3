// Package notify delivers prescription lifecycle events to interested
// parties. The production transport is out of scope for now; the log
// notifier records every event so the hook points stay exercised.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event names the lifecycle moments worth announcing.
type Event string

const (
	EventPrescriptionCreated   Event = "prescription.created"
	EventPrescriptionDispensed Event = "prescription.dispensed"
)

// Notifier receives lifecycle events. Implementations must be safe for
// concurrent use and must not block the request path for long.
type Notifier interface {
	Notify(ctx context.Context, event Event, prescriptionID uuid.UUID)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event, prescriptionID uuid.UUID) {
	n.logger.Info().
		Str("event", string(event)).
		Str("prescription_id", prescriptionID.String()).
		Msg("lifecycle event")
}

// Noop discards all events.
type Noop struct{}

func (Noop) Notify(context.Context, Event, uuid.UUID) {}
