package model

// CachedURL is the flat value kept in the cache under the record's identifier.
// Hits may lag the store until the entry expires or is overwritten.
type CachedURL struct {
	OriginalURL string `redis:"original_url" json:"originalUrl"`
	ShortURL    string `redis:"short_url" json:"shortUrl"`
	Enabled     bool   `redis:"enabled" json:"enabled"`
	Hits        int64  `redis:"hits" json:"hits"`
}
