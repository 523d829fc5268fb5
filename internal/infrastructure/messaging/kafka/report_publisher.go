package kafka

import (
	"context"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// ReportPublisher announces submitted report jobs. Messages are keyed by job
// id so every redelivery of a job lands on the same partition.
type ReportPublisher struct {
	producer messagePublisher
	topic    string
	source   string
}

var _ reporting.Publisher = (*ReportPublisher)(nil)

// NewReportPublisher publishes to topic; an empty topic selects
// TopicReportRequested.
func NewReportPublisher(producer messagePublisher, topic, source string) *ReportPublisher {
	if topic == "" {
		topic = TopicReportRequested
	}
	return &ReportPublisher{producer: producer, topic: topic, source: source}
}

func (p *ReportPublisher) PublishReportRequested(ctx context.Context, req reporting.ReportRequested) error {
	env, err := NewEventEnvelope(EventReportRequested, p.source, req)
	if err != nil {
		return err
	}
	if !req.RequestedAt.IsZero() {
		env.Timestamp = req.RequestedAt.UTC()
	}
	msg, err := env.ToMessage(p.topic, []byte(req.JobID.String()))
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "failed to publish report request").
			WithDetail("job_id=" + req.JobID.String())
	}
	return nil
}

// DecodeReportRequested extracts the request carried by msg.
func DecodeReportRequested(msg *Message) (*reporting.ReportRequested, error) {
	env, err := MessageToEventEnvelope(msg)
	if err != nil {
		return nil, err
	}
	if env.EventType != EventReportRequested {
		return nil, errors.New(errors.ErrCodeValidation, "unexpected event type").WithDetail("event_type=" + env.EventType)
	}
	var req reporting.ReportRequested
	if err := env.DecodePayload(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
