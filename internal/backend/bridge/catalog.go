package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jo-hoe/venicebridges/internal/common"
)

// Source loads the full set of bridges from an upstream.
type Source interface {
	Load(ctx context.Context) ([]Bridge, error)
}

// Catalog is an in-memory, concurrency-safe bridge index.
type Catalog struct {
	mu      sync.RWMutex
	bridges []Bridge
	byID    map[string]int

	// OnRefresh is called after every refresh attempt with the resulting
	// bridge count and error.
	OnRefresh func(count int, err error)
}

func NewCatalog() *Catalog {
	return &Catalog{byID: map[string]int{}}
}

// Replace swaps the catalog contents. Invalid ids and duplicate ids are
// dropped; for duplicates the first record wins.
func (c *Catalog) Replace(bridges []Bridge) int {
	kept := make([]Bridge, 0, len(bridges))
	byID := make(map[string]int, len(bridges))
	for _, b := range bridges {
		if err := ValidateID(b.ID); err != nil {
			log.Warn().Err(err).Str("bridge_name", b.Name).Msg("skipping bridge with invalid id")
			continue
		}
		if _, dup := byID[b.ID]; dup {
			log.Warn().Str("bridge_id", b.ID).Msg("skipping duplicate bridge id")
			continue
		}
		byID[b.ID] = len(kept)
		kept = append(kept, b)
	}

	c.mu.Lock()
	c.bridges = kept
	c.byID = byID
	c.mu.Unlock()
	return len(kept)
}

// Len returns the number of loaded bridges.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bridges)
}

// List returns all bridges ordered by name, ties broken by id.
func (c *Catalog) List() []Bridge {
	c.mu.RLock()
	out := make([]Bridge, len(c.bridges))
	copy(out, c.bridges)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Catalog) Get(id string) (Bridge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[id]
	if !ok {
		return Bridge{}, fmt.Errorf("bridge %q: %w", id, common.ErrNotFound)
	}
	return c.bridges[idx], nil
}

// Nearest returns the bridge closest to the given point and its distance in km.
func (c *Catalog) Nearest(lat, lon float64) (Bridge, float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, d, ok := Nearest(c.bridges, lat, lon)
	if !ok {
		return Bridge{}, 0, fmt.Errorf("no bridges loaded: %w", common.ErrNotFound)
	}
	return b, d, nil
}

// HitTest resolves a map click to the nearest bridge within toleranceMeters.
func (c *Catalog) HitTest(lat, lon, toleranceMeters float64) (Bridge, float64, error) {
	b, d, err := c.Nearest(lat, lon)
	if err != nil {
		return Bridge{}, 0, err
	}
	if d*1000 > toleranceMeters {
		return Bridge{}, 0, fmt.Errorf("no bridge within %.0fm: %w", toleranceMeters, common.ErrNotFound)
	}
	return b, d, nil
}

// Refresh loads the source and replaces the catalog. On error the previous
// contents are kept.
func (c *Catalog) Refresh(ctx context.Context, src Source) error {
	bridges, err := src.Load(ctx)
	if err != nil {
		c.notify(c.Len(), err)
		return fmt.Errorf("failed to load bridges: %w", err)
	}
	n := c.Replace(bridges)
	c.notify(n, nil)
	log.Info().Int("bridges", n).Msg("bridge catalog refreshed")
	return nil
}

// Watch refreshes the catalog every interval until ctx is done.
func (c *Catalog) Watch(ctx context.Context, src Source, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, src); err != nil {
				log.Error().Err(err).Msg("bridge catalog refresh failed, keeping previous set")
			}
		}
	}
}

func (c *Catalog) notify(count int, err error) {
	if c.OnRefresh != nil {
		c.OnRefresh(count, err)
	}
}
