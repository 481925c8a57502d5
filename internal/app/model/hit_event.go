package model

import "time"

// HitEvent records one successful redirect that still has to be applied to
// the store's hit counter.
type HitEvent struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	HitStreamName     = "HITS"
	HitStreamSubject  = "hits.events"
	HitConsumerName   = "hit-counter"
	HitStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
