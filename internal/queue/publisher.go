package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pcristin/zeroland-landing/internal/util"
)

// Publisher serializes TxEvents and retries transient producer failures.
// Publishing is best effort: a lost event never fails the transaction flow.
type Publisher struct {
	producer Producer
	topic    string
	retries  int
	backoff  time.Duration
	log      *zap.Logger
}

func NewPublisher(p Producer, topic string, log *zap.Logger) *Publisher {
	if p == nil {
		p = nopProducer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{producer: p, topic: topic, retries: 2, backoff: 200 * time.Millisecond, log: log}
}

func (p *Publisher) Publish(ctx context.Context, ev TxEvent) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := []byte(ev.Key())
	err = util.Retry(ctx, p.retries, p.backoff, func() error {
		return p.producer.Publish(ctx, p.topic, key, payload)
	})
	if err != nil {
		p.log.Warn("publish tx event failed",
			zap.String("kind", ev.Kind),
			zap.String("tx_hash", ev.TxHash),
			zap.Error(err),
		)
		return err
	}
	p.log.Debug("tx event published", zap.String("kind", ev.Kind), zap.String("status", ev.Status))
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
