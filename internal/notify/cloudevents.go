package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// CloudEventsNotifier posts a CloudEvent per finished job to an HTTP sink.
type CloudEventsNotifier struct {
	client cloudevents.Client
	target string
	source string
}

func NewCloudEventsNotifier(target, source string) (*CloudEventsNotifier, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return &CloudEventsNotifier{client: client, target: target, source: source}, nil
}

func (n *CloudEventsNotifier) Notify(ctx context.Context, rec models.JobStatusRecord) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(n.source)
	event.SetType(eventType(rec))
	event.SetSubject(rec.JobID)
	event.SetTime(time.Now())
	if err := event.SetData(cloudevents.ApplicationJSON, NewPayload(rec)); err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	result := n.client.Send(cloudevents.ContextWithTarget(ctx, n.target), event)
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("failed to deliver %s for job %s: %w", event.Type(), rec.JobID, result)
	}
	slog.Info("Job event delivered.", "jobId", rec.JobID, "type", event.Type(), "target", n.target)
	return nil
}
