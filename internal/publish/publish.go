// Package publish streams engine batches to a Kafka topic.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"exchange/internal/matching"
	"exchange/internal/orderbook"
)

const (
	EventOrder = "order"
	EventTrade = "trade"
)

// Event is the JSON value of every message. Exactly one of Order and Trade is set.
type Event struct {
	Type   string           `json:"type"`
	Symbol string           `json:"symbol"`
	Order  *orderbook.Order `json:"order,omitempty"`
	Trade  *orderbook.Trade `json:"trade,omitempty"`
}

type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher writes to topic with messages hashed by instrument, so each
// instrument's events stay ordered within one partition.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Messages encodes b as one message per order update followed by one per
// trade, in batch order.
func Messages(b matching.Batch) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(b.Orders)+len(b.Trades))
	key := []byte(b.Symbol)

	add := func(ev Event) error {
		val, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrapf(err, "encode %s event", ev.Type)
		}
		msgs = append(msgs, kafka.Message{
			Key:     key,
			Value:   val,
			Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
		})
		return nil
	}

	for i := range b.Orders {
		if err := add(Event{Type: EventOrder, Symbol: b.Symbol, Order: &b.Orders[i]}); err != nil {
			return nil, err
		}
	}
	for i := range b.Trades {
		if err := add(Event{Type: EventTrade, Symbol: b.Symbol, Trade: &b.Trades[i]}); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (p *Publisher) Record(ctx context.Context, b matching.Batch) error {
	msgs, err := Messages(b)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msgs...), "write messages")
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
