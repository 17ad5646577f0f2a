package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/acuity"
)

const RunFinishedEvent = "acuity.sync_run.finished"

// RunEvent is the message value written for every finished sync run.
type RunEvent struct {
	Type       string                   `json:"type"`
	RunID      string                   `json:"run_id"`
	Scope      string                   `json:"scope"`
	Status     string                   `json:"status"`
	Created    int                      `json:"created"`
	Updated    int                      `json:"updated"`
	Skipped    int                      `json:"skipped"`
	Calendars  []acuity.CalendarSummary `json:"calendars"`
	Warnings   []string                 `json:"warnings"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

func NewRunEvent(s *acuity.Summary) RunEvent {
	return RunEvent{
		Type:       RunFinishedEvent,
		RunID:      s.RunID,
		Scope:      string(s.Scope),
		Status:     s.Status,
		Created:    s.Created,
		Updated:    s.Updated,
		Skipped:    s.Skipped,
		Calendars:  s.PerCalendar,
		Warnings:   s.Warnings,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends run summaries to a topic, keyed by run id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	lg     *logrus.Logger
}

func NewKafkaPublisher(broker, topic string, lg *logrus.Logger) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      []string{broker},
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
	})
	return &KafkaPublisher{writer: writer, topic: topic, lg: lg}
}

func (p *KafkaPublisher) Publish(ctx context.Context, s *acuity.Summary) error {
	value, err := json.Marshal(NewRunEvent(s))
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(s.RunID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write run event to %s: %w", p.topic, err)
	}

	p.lg.Printf("📣 run summary %s delivered to topic %s", s.RunID, p.topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
