// Package events publishes layer lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/geoportal/internal/core/observability"
)

type Type string

const (
	LayerRegistered Type = "layer.registered"
	LayerRejected   Type = "layer.rejected"
	LayerDeleted    Type = "layer.deleted"
)

type Event struct {
	Version      int       `json:"version"`
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Code         string    `json:"code"`
	TS           time.Time `json:"ts"`
	JobID        string    `json:"job_id,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	View         string    `json:"view,omitempty"`
	Collection   string    `json:"collection,omitempty"`
	FeatureCount int       `json:"feature_count,omitempty"`
}

// New stamps a version 1 event with a fresh id and the current time.
func New(t Type, code string) Event {
	return Event{Version: 1, ID: uuid.NewString(), Type: t, Code: code, TS: time.Now().UTC()}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Type {
	case LayerRegistered, LayerRejected, LayerDeleted:
	default:
		return fmt.Errorf("type must be layer.registered|layer.rejected|layer.deleted")
	}
	if strings.TrimSpace(e.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Type == LayerRejected && e.Reason == "" {
		return fmt.Errorf("reason is required for rejected layers")
	}
	return nil
}

// Emitter never blocks the publishing path.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
	Close() error
}

// Noop discards events; used when Kafka is disabled.
type Noop struct{}

func (Noop) Emit(context.Context, Event) {}
func (Noop) Close() error                { return nil }

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
}

var _ Emitter = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("events: marshal", "err", err, "type", ev.Type)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Code),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("events: producer error", "err", err.Err, "topic", p.topic)
			}
		}
	}()

	return p
}

// Emit enqueues ev; invalid events are logged and a full queue drops the event.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if err := ev.Validate(); err != nil {
		p.logger.WarnContext(ctx, "events: invalid event dropped", "err", err, "type", ev.Type)
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncEventsDropped()
		p.logger.WarnContext(ctx, "events: queue full, event dropped", "type", ev.Type, "code", ev.Code)
	}
}

// Close drains queued events into the producer and closes it.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
