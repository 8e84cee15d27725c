package service

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/Astemirdum/club-lending/pkg/circuit_breaker"
)

type Enqueuer interface {
	Enqueue(topic, key string, v any) error
}

func NewEnqueuer(producer sarama.SyncProducer) Enqueuer {
	return &enqueuerImpl{
		producer: producer,
		cb:       circuit_breaker.New(20, 30*time.Second, 0.5, 3),
	}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
	cb       circuit_breaker.CircuitBreaker
}

// Enqueue publishes v as JSON. Events of one transaction share a key and so a partition.
func (q *enqueuerImpl) Enqueue(topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.cb.Call(func() error {
		msg := &sarama.ProducerMessage{Topic: topic, Key: sarama.StringEncoder(key), Value: sarama.ByteEncoder(data)}
		_, _, err := q.producer.SendMessage(msg)
		return err
	})
}

// NopEnqueuer drops every event; used when kafka is disabled.
type NopEnqueuer struct{}

func (NopEnqueuer) Enqueue(string, string, any) error { return nil }
