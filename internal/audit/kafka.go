// Package audit mirrors every published event envelope to a Kafka topic for
// offline processing. The gateway works fine without it; the sink is only
// constructed when brokers are configured.
package audit

import (
	"github.com/IBM/sarama"
)

// Sink writes envelopes to one Kafka topic, keyed by broker channel so the
// hash partitioner keeps per-channel order, matching the bus's ordering
// contract.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSink connects a synchronous producer.
func NewSink(brokers []string, topic string) (*Sink, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "mail-gateway"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &Sink{producer: producer, topic: topic}, nil
}

// newSinkWithProducer is the seam for tests.
func newSinkWithProducer(producer sarama.SyncProducer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

// Record appends one published envelope to the audit topic.
func (s *Sink) Record(channel string, payload []byte) error {
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(channel),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// Close shuts the producer down.
func (s *Sink) Close() error {
	return s.producer.Close()
}
