package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// KafkaPublisher writes order events to a topic keyed by order id, so all
// events of one order land on the same partition in order.
type KafkaPublisher struct {
	client producer
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID("livestockmart"),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

// Publish never blocks. When the client buffer is full, for example while the
// brokers are unreachable, the event is dropped with kgo.ErrMaxBuffered.
// Delivery failures are logged and dropped.
func (p *KafkaPublisher) Publish(_ context.Context, event order.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", event.OrderID).Msg("notify: failed to encode order event")
		return
	}

	record := &kgo.Record{
		Key:   []byte(event.OrderID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	// The request context ends with the HTTP response, the record must outlive it.
	p.client.TryProduce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			log.Error().Err(err).Stringer("order_id", event.OrderID).Str("event_type", string(event.Type)).Msg("notify: failed to produce order event")
			return
		}
		log.Debug().Stringer("order_id", event.OrderID).Int32("partition", r.Partition).Int64("offset", r.Offset).Msg("notify: order event produced")
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
