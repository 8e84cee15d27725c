package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Astemirdum/club-lending/lending/internal/model"
)

type recordEvent func(ctx context.Context, ev model.TransactionEvent) error

// Consumer stores transaction events from the lending topic in the audit log.
type Consumer struct {
	recordEventHandler recordEvent
	log                *zap.Logger
	ready              chan bool
}

func NewConsumer(recordEvent recordEvent, log *zap.Logger) *Consumer {
	return &Consumer{
		recordEventHandler: recordEvent,
		log:                log.Named("consumer"),
		ready:              make(chan bool),
	}
}

// Ready is closed once the first session is set up.
func (consumer *Consumer) Ready() <-chan bool {
	return consumer.ready
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-consumer.ready:
	default:
		close(consumer.ready)
	}
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var ev model.TransactionEvent
			if err := json.Unmarshal(message.Value, &ev); err != nil || ev.TransactionID == "" {
				consumer.log.Error("skip malformed event", zap.Error(err), zap.ByteString("value", message.Value))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.recordEventHandler(session.Context(), ev); err != nil {
				consumer.log.Error("consumer.recordEventHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("event recorded",
				zap.String("transaction_id", ev.TransactionID),
				zap.String("to", string(ev.To)),
				zap.Time("timestamp", message.Timestamp),
				zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
