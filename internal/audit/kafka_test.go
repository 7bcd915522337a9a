package audit

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestSinkRecord(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	sink := newSinkWithProducer(producer, "gateway-events")

	payload := []byte(`{"type":"event","eventName":"M:mailReceived"}`)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != string(payload) {
			t.Errorf("expected payload %s, got %s", payload, val)
		}
		return nil
	})

	if err := sink.Record("M:mailbox-1", payload); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestSinkRecordPropagatesError(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	sink := newSinkWithProducer(producer, "gateway-events")

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	if err := sink.Record("M:mailbox-1", []byte("x")); err == nil {
		t.Fatal("expected an error from the producer")
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
