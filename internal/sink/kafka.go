package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/koindex/koindex/internal/domain"
)

// messageWriter is the part of *kafka.Writer used by Kafka.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes trades to a topic. Messages are keyed by pair and routed
// with a hash balancer, so the trades of one pair share a partition and
// keep their order.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka creates a Kafka sink writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}
}

// Deliver implements engine.TradeSink.
func (k *Kafka) Deliver(ctx context.Context, t domain.Trade) error {
	value, err := Encode(t)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Pair),
		Value: value,
		Time:  t.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
