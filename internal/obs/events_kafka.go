package obs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProgress mirrors every Progress snapshot onto a Kafka topic for
// external dashboards, alongside whatever in-process sink (typically a
// LatestProgress) actually drives HTTP status responses. It never blocks
// ingestion on delivery: write failures are swallowed after a short
// deadline, consistent with progress reporting being best-effort for
// external observers.
type KafkaProgress struct {
	writer *kafka.Writer
	jobID  string
}

// NewKafkaProgress constructs a sink that writes one JSON message per
// Notify call to topic, keyed by jobID.
func NewKafkaProgress(brokers []string, topic, jobID string) *KafkaProgress {
	return &KafkaProgress{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		jobID: jobID,
	}
}

func (k *KafkaProgress) Notify(p Progress) {
	if k == nil || k.writer == nil {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(k.jobID),
		Value: body,
	})
}

// Close flushes and closes the underlying Kafka writer.
func (k *KafkaProgress) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
