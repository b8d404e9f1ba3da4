package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// messageWriter is the part of *kafka.Writer the dispatcher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Source       string
	WriteTimeout time.Duration
}

// KafkaDispatcher writes one record per outbound message, keyed by the
// target contract so a partition sees a contract's messages in order.
type KafkaDispatcher struct {
	writer messageWriter
	source string
}

func NewKafkaDispatcher(cfg KafkaConfig) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka dispatcher needs brokers and a topic")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &KafkaDispatcher{writer: w, source: cfg.Source}, nil
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msgs []msg.CosmosMsg) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]kafka.Message, 0, len(msgs))
	for i, m := range msgs {
		value, err := encodeEnvelope(Envelope{Source: d.source, Index: i, Message: m})
		if err != nil {
			return err
		}
		records = append(records, kafka.Message{
			Key:   m.ContractAddr.Bytes(),
			Value: value,
		})
	}
	if err := d.writer.WriteMessages(ctx, records...); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
