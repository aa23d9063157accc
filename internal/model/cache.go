package model

import "time"

// CacheEntry wraps the last fetched snapshot of some data.
type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh returns true if the entry age at now is below the window.
func (c CacheEntry[T]) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(c.Timestamp) < window
}
