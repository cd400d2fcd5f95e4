package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// EventNotifier publishes an events.AudioChunkCreatedEvent for every
// regenerated artifact. The batch run id becomes the workflow id.
type EventNotifier struct {
	natsConnection *nats.Conn
	subject        string
}

// NewEventNotifier creates a notifier publishing on subject.
func NewEventNotifier(natsConnection *nats.Conn, subject string) *EventNotifier {
	return &EventNotifier{natsConnection: natsConnection, subject: subject}
}

// AudioRegenerated implements core.Notifier.
func (n *EventNotifier) AudioRegenerated(_ context.Context, event core.RegeneratedEvent) error {
	created := events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: event.RunID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey: event.ArtifactName,
	}

	data, err := json.Marshal(created)
	if err != nil {
		return fmt.Errorf("failed to marshal audio event: %w", err)
	}

	err = n.natsConnection.Publish(n.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish audio event on %s: %w", n.subject, err)
	}

	return nil
}
