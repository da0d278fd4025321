// Package kafka publishes activity records to a Kafka topic after the
// owning transaction commits. Delivery is best effort: the engine logs
// and drops notifier errors, so a broker outage never blocks or rolls
// back a ledger mutation.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/cooplend/ledger-engine/ledger"
	"github.com/segmentio/kafka-go"
)

// Notifier implements ledger.Notifier over a Kafka writer.
type Notifier struct {
	writer *kafka.Writer
}

// NewNotifier creates a notifier publishing to the given brokers/topic.
func NewNotifier(brokers []string, topic string) *Notifier {
	return &Notifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Notify publishes one activity record, keyed by document kind so
// consumers see one kind's activities in order.
func (n *Notifier) Notify(ctx context.Context, act ledger.Activity) error {
	data, err := json.Marshal(act)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(act.Resource),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}

var _ ledger.Notifier = (*Notifier)(nil)
