// Package quota limits how many photos one client address may submit for a
// bridge on one UTC day.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jo-hoe/venicebridges/internal/common"
)

// DefaultLimit is the number of uploads allowed per client, bridge and day.
const DefaultLimit = 4

const dayLayout = "2006-01-02"

// Record is the persisted counter. A record from another day counts as zero.
type Record struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Store persists records. Reserve increments the counter for day unless it
// already reached limit, atomically per key.
type Store interface {
	Reserve(ctx context.Context, key, day string, limit int) (Record, bool, error)
	Release(ctx context.Context, key, day string) error
	Get(ctx context.Context, key string) (Record, error)
	Close() error
}

type Usage struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

type Limiter struct {
	store Store
	limit int
	now   func() time.Time
}

func NewLimiter(store Store, limit int) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{store: store, limit: limit, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Limit() int {
	return l.limit
}

// Key identifies the counter of one client address and bridge.
func Key(ip, bridgeID string) string {
	return "upload_" + ip + "_" + bridgeID
}

func (l *Limiter) today() string {
	return l.now().UTC().Format(dayLayout)
}

// Reserve counts one upload. It fails with common.ErrQuotaExceeded when the
// day's limit is used up.
func (l *Limiter) Reserve(ctx context.Context, ip, bridgeID string) (Usage, error) {
	day := l.today()
	rec, ok, err := l.store.Reserve(ctx, Key(ip, bridgeID), day, l.limit)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to reserve upload quota: %w", err)
	}
	usage := l.usage(rec, day)
	if !ok {
		return usage, common.ErrQuotaExceeded
	}
	return usage, nil
}

// Release gives back a reservation after a failed upload.
func (l *Limiter) Release(ctx context.Context, ip, bridgeID string) error {
	if err := l.store.Release(ctx, Key(ip, bridgeID), l.today()); err != nil {
		return fmt.Errorf("failed to release upload quota: %w", err)
	}
	return nil
}

func (l *Limiter) Status(ctx context.Context, ip, bridgeID string) (Usage, error) {
	rec, err := l.store.Get(ctx, Key(ip, bridgeID))
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read upload quota: %w", err)
	}
	return l.usage(rec, l.today()), nil
}

func (l *Limiter) usage(rec Record, day string) Usage {
	count := 0
	if rec.Date == day {
		count = rec.Count
	}
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Date: day, Count: count, Limit: l.limit, Remaining: remaining}
}
