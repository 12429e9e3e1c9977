package models

import "time"

// DedupLock is a short-lived submission lock keyed by fingerprint.
// It is created at submission time and either deleted after the enqueue
// attempt or left to expire.
type DedupLock struct {
	Fingerprint string    `json:"fingerprint" badgerhold:"key"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the lock's TTL has elapsed
func (l *DedupLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
