package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortlink/internal/app/model"
	"github.com/sifan077/shortlink/internal/app/repository"
	"go.uber.org/zap"
)

// errMalformedHit marks events that can never be applied and must not be redelivered.
var errMalformedHit = errors.New("malformed hit event")

const (
	hitFetchBatch   = 50
	hitFetchMaxWait = 5 * time.Second
	hitFetchBackoff = time.Second
)

// HitConsumer consumes hit events from NATS JetStream and applies them to the store.
type HitConsumer struct {
	js      nats.JetStreamContext
	logger  *zap.Logger
	repo    repository.URLRepository
	timeout time.Duration
	backoff time.Duration
	stop    chan struct{}
	done    chan struct{}
}

// NewHitConsumer creates a new hit event consumer
func NewHitConsumer(js nats.JetStreamContext, logger *zap.Logger, repo repository.URLRepository, timeout time.Duration) *HitConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultHitTimeout
	}
	return &HitConsumer{
		js:      js,
		logger:  logger,
		repo:    repo,
		timeout: timeout,
		backoff: hitFetchBackoff,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *HitConsumer) Start() error {
	// Create stream if not exists
	_, err := c.js.StreamInfo(model.HitStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:       model.HitStreamName,
			Subjects:   []string{model.HitStreamSubject},
			MaxBytes:   model.HitStreamMaxBytes,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Create consumer if not exists
	_, err = c.js.ConsumerInfo(model.HitStreamName, model.HitConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.HitStreamName, &nats.ConsumerConfig{
			Durable:   model.HitConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.HitStreamSubject, model.HitConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub.Fetch)
	return nil
}

// Stop signals the consume loop to exit and waits for the current batch.
func (c *HitConsumer) Stop() {
	close(c.stop)
	<-c.done
}

type fetchFunc func(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)

func (c *HitConsumer) consume(fetch fetchFunc) {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			c.logger.Info("hit consumer stopped")
			return
		default:
		}

		msgs, err := fetch(hitFetchBatch, nats.MaxWait(hitFetchMaxWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch hit events", zap.Error(err))
			// Wait out reconnects instead of spinning on the same error.
			select {
			case <-c.stop:
				c.logger.Info("hit consumer stopped")
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.Handle(msg.Data); err != nil {
				if errors.Is(err, errMalformedHit) {
					_ = msg.Term()
				} else {
					_ = msg.Nak()
				}
				continue
			}
			_ = msg.Ack()
		}
	}
}

// Handle applies one encoded hit event. Events for records that no longer
// exist are dropped rather than redelivered.
func (c *HitConsumer) Handle(data []byte) error {
	var event model.HitEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal hit event", zap.Error(err))
		return fmt.Errorf("%w: %w", errMalformedHit, err)
	}
	if event.Identifier == "" {
		return fmt.Errorf("%w: missing identifier", errMalformedHit)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.repo.IncrementHits(ctx, event.Identifier); err != nil {
		if errors.Is(err, repository.ErrURLNotFound) {
			c.logger.Warn("dropping hit for unknown identifier",
				zap.String("id", event.ID),
				zap.String("identifier", event.Identifier))
			return nil
		}
		c.logger.Error("failed to apply hit event",
			zap.String("id", event.ID),
			zap.String("identifier", event.Identifier),
			zap.Error(err))
		return err
	}

	c.logger.Debug("hit event applied",
		zap.String("id", event.ID),
		zap.String("identifier", event.Identifier),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}
