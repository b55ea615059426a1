package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/sns"
)

// EventPublisher publishes template lifecycle events.
type EventPublisher interface {
	PublishTemplateEvent(ctx context.Context, ev sns.TemplateEvent) (string, error)
}

// SNSNotifier turns job outcomes into template lifecycle events.
type SNSNotifier struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func NewSNSNotifier(publisher EventPublisher, logger *zap.Logger) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, logger: logger}
}

// Wants skips webhook events that were not applied.
func (n *SNSNotifier) Wants(o *Outcome) bool {
	if o.Job.Kind == jobs.KindWebhook && o.State == jobs.StateSuccess {
		applied, _ := o.Result["applied"].(bool)
		return applied
	}
	return true
}

func (n *SNSNotifier) Notify(ctx context.Context, o *Outcome) error {
	ev := sns.TemplateEvent{
		Event:  eventFor(o),
		JobID:  o.Job.ID.String(),
		OrgID:  o.Job.OrgID,
		AppID:  o.Job.AppID,
		Status: o.TemplateStatus,
		Detail: o.Result,
	}
	if o.Job.Kind.TargetsTemplate() {
		ev.TemplateID = o.Job.TemplateID.String()
	}
	if o.Err != nil {
		ev.Detail = o.Err.AuditPayload()
	}

	msgID, err := n.publisher.PublishTemplateEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}

	n.logger.Debug("template event published",
		zap.String("event", string(ev.Event)),
		zap.String("message_id", msgID),
	)
	return nil
}

func eventFor(o *Outcome) sns.EventType {
	if o.State == jobs.StateFailure {
		return sns.EventFailed
	}
	switch o.Job.Kind {
	case jobs.KindSubmit:
		return sns.EventSubmitted
	case jobs.KindUpdate:
		return sns.EventUpdated
	case jobs.KindDelete:
		return sns.EventDeleted
	case jobs.KindSync:
		return sns.EventSynced
	default:
		return sns.EventStatusChanged
	}
}
