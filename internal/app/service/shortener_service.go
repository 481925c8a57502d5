package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sifan077/shortlink/internal/app/cache"
	"github.com/sifan077/shortlink/internal/app/idgen"
	"github.com/sifan077/shortlink/internal/app/metrics"
	"github.com/sifan077/shortlink/internal/app/model"
	"github.com/sifan077/shortlink/internal/app/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL          = time.Hour
	DefaultMaxCreateAttempts = 5
	DefaultOperationTimeout  = 3 * time.Second
)

// ShortenerService implements the short-link lifecycle on top of a durable
// store and a TTL-bound cache.
//
// Reads are cache-aside: cache first, store on miss, then repopulate.
// Mutations are write-through: store first, then the updated record is
// written to the cache before the call returns. The store is the source of
// truth; the cached hit count is display-only and may lag.
type ShortenerService interface {
	Create(ctx context.Context, originalURL string) (*model.URLRecord, error)
	// Resolve returns the redirect target and records a hit.
	Resolve(ctx context.Context, identifier string) (*model.CachedURL, error)
	UpdateStatus(ctx context.Context, identifier string, enabled bool) (*model.URLRecord, error)
	UpdateTarget(ctx context.Context, identifier, originalURL string) (*model.URLRecord, error)
	// Stats reads without recording a hit and includes disabled records.
	Stats(ctx context.Context, identifier string) (*Stats, error)
}

// Stats is the read model returned by ShortenerService.Stats.
type Stats struct {
	ID          string `json:"id"`
	OriginalURL string `json:"originalUrl"`
	ShortURL    string `json:"shortUrl"`
	Enabled     bool   `json:"enabled"`
	Hits        int64  `json:"hits"`
}

// ShortenerDeps groups dependencies required by the shortener.
type ShortenerDeps struct {
	Logger  *zap.Logger
	Repo    repository.URLRepository
	Cache   cache.URLCache
	IDs     idgen.Generator
	Hits    HitRecorder
	Metrics *metrics.Metrics

	BaseURL           string
	CacheTTL          time.Duration
	MaxCreateAttempts int
	OperationTimeout  time.Duration
}

type shortenerService struct {
	logger   *zap.Logger
	repo     repository.URLRepository
	cache    cache.URLCache
	ids      idgen.Generator
	hits     HitRecorder
	metrics  *metrics.Metrics
	validate *validator.Validate
	lookups  singleflight.Group
	now      func() time.Time

	baseURL     string
	cacheTTL    time.Duration
	maxAttempts int
	timeout     time.Duration
}

// NewShortenerService returns a ShortenerService wired to the given dependencies.
func NewShortenerService(deps ShortenerDeps) ShortenerService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &shortenerService{
		logger:      logger,
		repo:        deps.Repo,
		cache:       deps.Cache,
		ids:         deps.IDs,
		hits:        deps.Hits,
		metrics:     deps.Metrics,
		validate:    validator.New(),
		now:         time.Now,
		baseURL:     deps.BaseURL,
		cacheTTL:    deps.CacheTTL,
		maxAttempts: deps.MaxCreateAttempts,
		timeout:     deps.OperationTimeout,
	}
	if s.hits == nil {
		s.hits = NewAsyncHitRecorder(deps.Repo, logger, deps.Metrics, 0)
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxCreateAttempts
	}
	if s.timeout <= 0 {
		s.timeout = DefaultOperationTimeout
	}
	return s
}

func (s *shortenerService) Create(ctx context.Context, originalURL string) (*model.URLRecord, error) {
	if err := s.validateURL(originalURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		identifier, err := s.ids.Generate()
		if err != nil {
			return nil, fmt.Errorf("create url: %w", err)
		}

		record := model.NewURLRecord(identifier, originalURL, s.baseURL, s.now())
		err = s.withTimeout(ctx, func(ctx context.Context) error {
			return s.repo.Create(ctx, record)
		})
		if errors.Is(err, repository.ErrDuplicateURL) {
			s.logger.Debug("identifier collision, retrying",
				zap.String("identifier", identifier),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, dependencyError("create url", err)
		}

		s.metrics.CreateAttempts(attempt)
		s.prime(ctx, record)
		return record, nil
	}

	s.metrics.CreateAttempts(s.maxAttempts)
	return nil, fmt.Errorf("%w: no free identifier after %d attempts", ErrConflict, s.maxAttempts)
}

func (s *shortenerService) Resolve(ctx context.Context, identifier string) (*model.CachedURL, error) {
	if !idgen.Valid(identifier) {
		s.metrics.Redirect("not_found")
		return nil, ErrNotFound
	}

	entry, err := s.lookup(ctx, identifier, true)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Redirect("not_found")
		}
		return nil, err
	}
	// A cached disabled copy is authoritative enough to refuse the redirect:
	// status updates write through before they return.
	if !entry.Enabled {
		s.metrics.Redirect("not_found")
		return nil, ErrNotFound
	}

	s.hits.Record(identifier)
	if s.incrCachedHits(ctx, identifier) {
		entry.Hits++
	}

	s.metrics.Redirect("found")
	return entry, nil
}

func (s *shortenerService) UpdateStatus(ctx context.Context, identifier string, enabled bool) (*model.URLRecord, error) {
	if !idgen.Valid(identifier) {
		return nil, ErrNotFound
	}

	var record *model.URLRecord
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.repo.UpdateEnabled(ctx, identifier, enabled)
		return err
	})
	if err != nil {
		return nil, storeError("update status", err)
	}

	if err := s.writeThrough(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *shortenerService) UpdateTarget(ctx context.Context, identifier, originalURL string) (*model.URLRecord, error) {
	if err := s.validateURL(originalURL); err != nil {
		return nil, err
	}
	if !idgen.Valid(identifier) {
		return nil, ErrNotFound
	}

	var record *model.URLRecord
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.repo.UpdateOriginalURL(ctx, identifier, originalURL)
		return err
	})
	if err != nil {
		return nil, storeError("update target", err)
	}

	if err := s.writeThrough(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *shortenerService) Stats(ctx context.Context, identifier string) (*Stats, error) {
	if !idgen.Valid(identifier) {
		return nil, ErrNotFound
	}

	entry, err := s.lookup(ctx, identifier, false)
	if err != nil {
		return nil, err
	}

	return &Stats{
		ID:          identifier,
		OriginalURL: entry.OriginalURL,
		ShortURL:    entry.ShortURL,
		Enabled:     entry.Enabled,
		Hits:        entry.Hits,
	}, nil
}

// lookup is the cache-aside read. Cache failures degrade to a miss. Misses
// for the same identifier and filter share one store round trip.
func (s *shortenerService) lookup(ctx context.Context, identifier string, enabledOnly bool) (*model.CachedURL, error) {
	if entry, ok := s.cached(ctx, identifier); ok {
		return entry, nil
	}

	key := "all:" + identifier
	if enabledOnly {
		key = "enabled:" + identifier
	}

	// The shared call must not die with whichever caller happened to start it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.lookups.Do(key, func() (interface{}, error) {
		var record *model.URLRecord
		err := s.withTimeout(shared, func(ctx context.Context) error {
			var err error
			record, err = s.repo.FindByIdentifier(ctx, identifier, enabledOnly)
			return err
		})
		if err != nil {
			return nil, storeError("find url", err)
		}

		entry := record.Cached()
		s.populate(shared, identifier, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry := *v.(*model.CachedURL)
	return &entry, nil
}

func (s *shortenerService) cached(ctx context.Context, identifier string) (*model.CachedURL, bool) {
	var entry *model.CachedURL
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.cache.Get(ctx, identifier)
		return err
	})
	switch {
	case err == nil:
		s.metrics.CacheLookup(metrics.CacheHit)
		return entry, true
	case errors.Is(err, cache.ErrCacheMiss):
		s.metrics.CacheLookup(metrics.CacheMiss)
	default:
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.Warn("cache read failed, falling back to store",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
	}
	return nil, false
}

// populate repopulates after a miss. It never overwrites an existing entry so
// a concurrent mutation's write-through wins over this older store read.
func (s *shortenerService) populate(ctx context.Context, identifier string, entry *model.CachedURL) {
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		_, err := s.cache.Add(ctx, identifier, entry, s.cacheTTL)
		return err
	})
	if err != nil {
		s.logger.Warn("failed to populate cache",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
	}
}

// prime caches a freshly created record. Failure leaves the durable record
// in place and the create succeeds.
func (s *shortenerService) prime(ctx context.Context, record *model.URLRecord) {
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, record.Identifier, record.Cached(), s.cacheTTL)
	})
	if err != nil {
		s.logger.Warn("failed to prime cache for new url",
			zap.String("identifier", record.Identifier),
			zap.Error(err),
		)
	}
}

// writeThrough mirrors a committed store mutation into the cache. Failing here
// would leave a stale copy reachable, so the error is surfaced.
func (s *shortenerService) writeThrough(ctx context.Context, record *model.URLRecord) error {
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, record.Identifier, record.Cached(), s.cacheTTL)
	})
	if err != nil {
		s.logger.Error("cache write-through failed after store update",
			zap.String("identifier", record.Identifier),
			zap.Error(err),
		)
		return dependencyError("cache write-through", err)
	}
	return nil
}

func (s *shortenerService) incrCachedHits(ctx context.Context, identifier string) bool {
	var ok bool
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.cache.IncrHits(ctx, identifier)
		return err
	})
	if err != nil {
		s.logger.Warn("failed to bump cached hits",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *shortenerService) validateURL(originalURL string) error {
	if err := s.validate.Var(originalURL, "required,http_url"); err != nil {
		return fmt.Errorf("%w: originalUrl must be an absolute http(s) URL", ErrValidation)
	}
	return nil
}

func (s *shortenerService) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrURLNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return dependencyError(op, err)
}

func dependencyError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}
