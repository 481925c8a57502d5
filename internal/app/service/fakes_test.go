package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/shortlink/internal/app/cache"
	"github.com/sifan077/shortlink/internal/app/model"
	"github.com/sifan077/shortlink/internal/app/repository"
)

// memoryRepository is an in-memory URLRepository. Hook fields override
// individual operations.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]model.URLRecord
	calls   map[string]int

	createFn    func(ctx context.Context, record *model.URLRecord) error
	incrementFn func(ctx context.Context, identifier string) error
	updateErr   error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		records: make(map[string]model.URLRecord),
		calls:   make(map[string]int),
	}
}

func (r *memoryRepository) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *memoryRepository) get(identifier string) (model.URLRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identifier]
	return rec, ok
}

func (r *memoryRepository) Create(ctx context.Context, record *model.URLRecord) error {
	r.mu.Lock()
	r.calls["create"]++
	r.mu.Unlock()

	if r.createFn != nil {
		if err := r.createFn(ctx, record); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.Identifier]; ok {
		return repository.ErrDuplicateURL
	}
	for _, existing := range r.records {
		if existing.ShortURL == record.ShortURL {
			return repository.ErrDuplicateURL
		}
	}
	r.records[record.Identifier] = *record
	return nil
}

func (r *memoryRepository) FindByIdentifier(ctx context.Context, identifier string, enabledOnly bool) (*model.URLRecord, error) {
	filter := repository.Filter{Identifier: identifier}
	if enabledOnly {
		enabled := true
		filter.Enabled = &enabled
	}
	return r.FindOne(ctx, filter)
}

func (r *memoryRepository) FindOne(_ context.Context, filter repository.Filter) (*model.URLRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["find"]++

	for _, rec := range r.records {
		if filter.Identifier != "" && rec.Identifier != filter.Identifier {
			continue
		}
		if filter.ShortURL != "" && rec.ShortURL != filter.ShortURL {
			continue
		}
		if filter.Enabled != nil && rec.Enabled != *filter.Enabled {
			continue
		}
		found := rec
		return &found, nil
	}
	return nil, repository.ErrURLNotFound
}

func (r *memoryRepository) UpdateEnabled(_ context.Context, identifier string, enabled bool) (*model.URLRecord, error) {
	return r.update(identifier, func(rec *model.URLRecord) { rec.Enabled = enabled })
}

func (r *memoryRepository) UpdateOriginalURL(_ context.Context, identifier, originalURL string) (*model.URLRecord, error) {
	return r.update(identifier, func(rec *model.URLRecord) { rec.OriginalURL = originalURL })
}

func (r *memoryRepository) update(identifier string, apply func(rec *model.URLRecord)) (*model.URLRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["update"]++

	if r.updateErr != nil {
		return nil, r.updateErr
	}
	rec, ok := r.records[identifier]
	if !ok {
		return nil, repository.ErrURLNotFound
	}
	apply(&rec)
	r.records[identifier] = rec
	updated := rec
	return &updated, nil
}

func (r *memoryRepository) IncrementHits(ctx context.Context, identifier string) error {
	if r.incrementFn != nil {
		if err := r.incrementFn(ctx, identifier); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["increment"]++

	rec, ok := r.records[identifier]
	if !ok {
		return repository.ErrURLNotFound
	}
	rec.Hits++
	rec.LastAccessed = time.Now()
	r.records[identifier] = rec
	return nil
}

type cacheEntry struct {
	value model.CachedURL
	ttl   time.Duration
}

// memoryCache is an in-memory URLCache without real expiry; tests call
// clear to simulate an expired entry.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	getErr  error
	setErr  error
	addErr  error
	incrErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]cacheEntry)}
}

func (c *memoryCache) clear(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identifier)
}

func (c *memoryCache) peek(identifier string) (model.CachedURL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[identifier]
	return e.value, ok
}

func (c *memoryCache) put(identifier string, value model.CachedURL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identifier] = cacheEntry{value: value, ttl: time.Hour}
}

func (c *memoryCache) Get(_ context.Context, identifier string) (*model.CachedURL, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	e, ok := c.entries[identifier]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	v := e.value
	return &v, nil
}

func (c *memoryCache) Set(_ context.Context, identifier string, value *model.CachedURL, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[identifier] = cacheEntry{value: *value, ttl: ttl}
	return nil
}

func (c *memoryCache) Add(_ context.Context, identifier string, value *model.CachedURL, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addErr != nil {
		return false, c.addErr
	}
	if _, ok := c.entries[identifier]; ok {
		return false, nil
	}
	c.entries[identifier] = cacheEntry{value: *value, ttl: ttl}
	return true, nil
}

func (c *memoryCache) IncrHits(_ context.Context, identifier string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incrErr != nil {
		return false, c.incrErr
	}
	e, ok := c.entries[identifier]
	if !ok {
		return false, nil
	}
	e.value.Hits++
	c.entries[identifier] = e
	return true, nil
}

func (c *memoryCache) Ping(context.Context) error {
	return c.getErr
}

// sequenceGenerator returns ids in order and repeats the last one forever.
type sequenceGenerator struct {
	mu    sync.Mutex
	ids   []string
	calls int
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.ids) {
		i = len(g.ids) - 1
	}
	g.calls++
	return g.ids[i], nil
}
