package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/acuity"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesRunEvent(t *testing.T) {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "acuity_sync_runs", lg: lg}

	started := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	sum := &acuity.Summary{
		RunID:   "3f1c",
		Scope:   acuity.ScopeAll,
		Status:  "partial",
		Created: 4,
		Updated: 2,
		Skipped: 1,
		PerCalendar: []acuity.CalendarSummary{
			{CalendarID: "9", Pages: 2, Created: 4, Halt: acuity.HaltEmptyPage},
			{CalendarID: "10", Halt: acuity.HaltError, Error: "status=502", Err: errors.New("status=502")},
		},
		Warnings:   []string{"calendar 10 failed"},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}

	if err := p.Publish(context.Background(), sum); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "3f1c" {
		t.Fatalf("key = %q, want run id", w.msgs[0].Key)
	}

	var ev RunEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != RunFinishedEvent || ev.Status != "partial" || ev.Created != 4 || len(ev.Calendars) != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Calendars[1].Error != "status=502" {
		t.Fatalf("calendar error = %q", ev.Calendars[1].Error)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	boom := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}, topic: "t", lg: lg}

	err := p.Publish(context.Background(), &acuity.Summary{RunID: "r"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
}
