package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/shortlink/internal/app/metrics"
	"github.com/sifan077/shortlink/internal/app/repository"
	"go.uber.org/zap"
)

const defaultHitTimeout = 5 * time.Second

// HitRecorder applies redirect hits to the persistent store without blocking
// the redirect response.
type HitRecorder interface {
	Record(identifier string)
	// Close waits for in-flight hits to settle or ctx to expire.
	Close(ctx context.Context) error
}

// AsyncHitRecorder increments the store counter in a goroutine per hit.
type AsyncHitRecorder struct {
	repo    repository.URLRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncHitRecorder creates a recorder that calls repo.IncrementHits directly.
func NewAsyncHitRecorder(repo repository.URLRepository, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *AsyncHitRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultHitTimeout
	}
	return &AsyncHitRecorder{
		repo:    repo,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
}

func (r *AsyncHitRecorder) Record(identifier string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.apply(identifier)
	}()
}

// apply runs detached from the request context, which is gone by the time it executes.
func (r *AsyncHitRecorder) apply(identifier string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.IncrementHits(ctx, identifier); err != nil {
		r.metrics.HitIncrement(false)
		r.logger.Error("failed to increment hits",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return
	}
	r.metrics.HitIncrement(true)
}

func (r *AsyncHitRecorder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
