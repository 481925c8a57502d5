package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortlink/internal/app/model"
	"go.uber.org/zap"
)

const (
	publishAttempts   = 3
	publishRetryDelay = 100 * time.Millisecond
)

// Publisher is the subset of nats.JetStreamContext the hit publisher needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// HitPublisher hands hits to JetStream; HitConsumer applies them to the store.
//
// A hit falls back to a direct store increment only when the publish failed
// before the stream could have stored it. A timed out publish may still have
// been stored, so it is retried under the same message id and the stream's
// duplicate window drops the copy. If every retry times out the hit is logged
// and dropped rather than risk counting it twice.
type HitPublisher struct {
	js         Publisher
	fallback   *AsyncHitRecorder
	logger     *zap.Logger
	now        func() time.Time
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewHitPublisher creates a JetStream-backed HitRecorder.
func NewHitPublisher(js Publisher, fallback *AsyncHitRecorder, logger *zap.Logger) *HitPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HitPublisher{
		js:         js,
		fallback:   fallback,
		logger:     logger,
		now:        time.Now,
		retryDelay: publishRetryDelay,
	}
}

func (p *HitPublisher) Record(identifier string) {
	event := model.HitEvent{
		ID:         uuid.New().String(),
		Identifier: identifier,
		Timestamp:  p.now(),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.Publish(event)
		switch {
		case err == nil:
		case notStored(err):
			p.logger.Warn("failed to publish hit event, incrementing directly",
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			p.fallback.Record(identifier)
		default:
			p.logger.Error("hit event delivery unconfirmed, dropping hit",
				zap.String("id", event.ID),
				zap.String("identifier", identifier),
				zap.Error(err),
			)
		}
	}()
}

// Publish sends one hit event. The event id doubles as the JetStream message
// id, so retries after an ambiguous failure are deduplicated by the stream.
func (p *HitPublisher) Publish(event model.HitEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		_, err = p.js.Publish(model.HitStreamSubject, data, nats.MsgId(event.ID))
		if err == nil || !ambiguous(err) || attempt == publishAttempts {
			return err
		}
		p.logger.Debug("retrying hit event publish",
			zap.String("id", event.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(p.retryDelay)
	}
}

func (p *HitPublisher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.fallback.Close(ctx)
}

// ambiguous reports whether the message may have been stored even though no
// acknowledgement arrived.
func ambiguous(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// notStored reports whether err guarantees the stream never saw the message.
func notStored(err error) bool {
	var apiErr *nats.APIError
	switch {
	case errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrNoStreamResponse),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrInvalidConnection),
		errors.Is(err, nats.ErrMaxPayload),
		errors.Is(err, nats.ErrBadSubject):
		return true
	case errors.As(err, &apiErr):
		// The stream answered and rejected the message.
		return true
	}
	return false
}
