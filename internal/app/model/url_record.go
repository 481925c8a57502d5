package model

import (
	"strings"
	"time"
)

// URLRecord is the durable short-link entity. The persistent store owns the
// canonical value of every field.
type URLRecord struct {
	Identifier   string    `db:"identifier" gorm:"primaryKey;size:16" bson:"identifier" json:"id"`
	OriginalURL  string    `db:"original_url" gorm:"type:text;not null" bson:"original_url" json:"originalUrl"`
	ShortURL     string    `db:"short_url" gorm:"size:512;not null;uniqueIndex" bson:"short_url" json:"shortUrl"`
	Enabled      bool      `db:"enabled" gorm:"not null;default:true;index" bson:"enabled" json:"enabled"`
	Hits         int64     `db:"hits" gorm:"not null;default:0" bson:"hits" json:"hits"`
	CreatedAt    time.Time `db:"created_at" gorm:"autoCreateTime" bson:"created_at" json:"createdAt"`
	LastAccessed time.Time `db:"last_accessed" gorm:"not null" bson:"last_accessed" json:"lastAccessed"`
}

// TableName pins the GORM table name.
func (URLRecord) TableName() string {
	return "url_records"
}

// NewURLRecord builds an enabled record with zero hits.
func NewURLRecord(identifier, originalURL, baseURL string, now time.Time) *URLRecord {
	return &URLRecord{
		Identifier:   identifier,
		OriginalURL:  originalURL,
		ShortURL:     BuildShortURL(baseURL, identifier),
		Enabled:      true,
		Hits:         0,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// BuildShortURL joins the base URL and identifier with exactly one slash.
func BuildShortURL(baseURL, identifier string) string {
	return strings.TrimRight(baseURL, "/") + "/" + identifier
}

// Cached returns the denormalized copy stored in the cache.
func (r *URLRecord) Cached() *CachedURL {
	return &CachedURL{
		OriginalURL: r.OriginalURL,
		ShortURL:    r.ShortURL,
		Enabled:     r.Enabled,
		Hits:        r.Hits,
	}
}
