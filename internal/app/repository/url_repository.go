package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/shortlink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrURLNotFound signals that no record matches the identifier (and filter).
	ErrURLNotFound = errors.New("url not found")
	// ErrDuplicateURL signals a uniqueness violation on identifier or short URL.
	ErrDuplicateURL = errors.New("url already exists")
)

const uniqueViolation = "23505"

// Filter is a set of equality predicates. Zero-valued fields are ignored.
type Filter struct {
	Identifier string
	ShortURL   string
	Enabled    *bool
}

// URLRepository defines the data access contract for short-link records.
type URLRepository interface {
	Create(ctx context.Context, record *model.URLRecord) error
	FindByIdentifier(ctx context.Context, identifier string, enabledOnly bool) (*model.URLRecord, error)
	FindOne(ctx context.Context, filter Filter) (*model.URLRecord, error)
	UpdateEnabled(ctx context.Context, identifier string, enabled bool) (*model.URLRecord, error)
	UpdateOriginalURL(ctx context.Context, identifier, originalURL string) (*model.URLRecord, error)
	IncrementHits(ctx context.Context, identifier string) error
}

type urlRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewURLRepository returns a GORM-backed URLRepository.
func NewURLRepository(db *gorm.DB) URLRepository {
	return &urlRepository{db: db, now: time.Now}
}

func (r *urlRepository) Create(ctx context.Context, record *model.URLRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateURL
		}
		return err
	}
	return nil
}

func (r *urlRepository) FindByIdentifier(ctx context.Context, identifier string, enabledOnly bool) (*model.URLRecord, error) {
	filter := Filter{Identifier: identifier}
	if enabledOnly {
		enabled := true
		filter.Enabled = &enabled
	}
	return r.FindOne(ctx, filter)
}

func (r *urlRepository) FindOne(ctx context.Context, filter Filter) (*model.URLRecord, error) {
	query := r.db.WithContext(ctx)
	if filter.Identifier != "" {
		query = query.Where("identifier = ?", filter.Identifier)
	}
	if filter.ShortURL != "" {
		query = query.Where("short_url = ?", filter.ShortURL)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}

	var record model.URLRecord
	if err := query.First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrURLNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *urlRepository) UpdateEnabled(ctx context.Context, identifier string, enabled bool) (*model.URLRecord, error) {
	return r.updateReturning(ctx, identifier, map[string]interface{}{
		"enabled": enabled,
	})
}

func (r *urlRepository) UpdateOriginalURL(ctx context.Context, identifier, originalURL string) (*model.URLRecord, error) {
	return r.updateReturning(ctx, identifier, map[string]interface{}{
		"original_url": originalURL,
	})
}

// IncrementHits bumps the counter in a single UPDATE so concurrent redirects
// never lose increments.
func (r *urlRepository) IncrementHits(ctx context.Context, identifier string) error {
	result := r.db.WithContext(ctx).
		Model(&model.URLRecord{}).
		Where("identifier = ?", identifier).
		UpdateColumns(map[string]interface{}{
			"hits":          gorm.Expr("hits + ?", 1),
			"last_accessed": r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrURLNotFound
	}
	return nil
}

func (r *urlRepository) updateReturning(ctx context.Context, identifier string, fields map[string]interface{}) (*model.URLRecord, error) {
	var record model.URLRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.URLRecord{}).
			Where("identifier = ?", identifier).
			UpdateColumns(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrURLNotFound
		}
		return tx.Where("identifier = ?", identifier).First(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
