// Package events publishes contract lifecycle events to Kafka.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
)

// ContractEvent is the message body. The contract id is the message key so
// events of one contract stay ordered within a partition.
type ContractEvent struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	ContractID     string    `json:"contract_id"`
	ContractNumber string    `json:"contract_number"`
	UnitID         string    `json:"unit_id"`
	Status         string    `json:"status"`
	RenewalStatus  string    `json:"renewal_status"`
	Actor          string    `json:"actor"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev *ContractEvent) error
	Close() error
}

// messageWriter is the part of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zap.SugaredLogger
}

// NewPublisher returns a no-op publisher when no brokers are configured.
func NewPublisher(cfg *config.Config, log *zap.SugaredLogger) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Infow("kafka brokers not configured, contract events are dropped")
		return nopPublisher{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	log.Infow("kafka publisher initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return newKafkaPublisher(writer, cfg.Kafka.Topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log *zap.SugaredLogger) *kafkaPublisher {
	return &kafkaPublisher{writer: w, topic: topic, log: log}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev *ContractEvent) error {
	value, err := jsoniter.ConfigFastest.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.ContractID),
		Value: value,
		Time:  ev.OccurredAt,
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}
	p.log.Debugw("published contract event", "topic", p.topic, "contract_id", ev.ContractID, "type", ev.Type)
	return nil
}

func (p *kafkaPublisher) Close() error {
	p.log.Infow("closing kafka writer")
	return p.writer.Close()
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *ContractEvent) error { return nil }
func (nopPublisher) Close() error                                  { return nil }

var Module = fx.Options(
	fx.Provide(NewPublisher),
	fx.Invoke(registerClose),
)

func registerClose(lc fx.Lifecycle, p Publisher) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return p.Close() },
	})
}
