// Package gallery names, lists and moderates bridge photos in the object
// store. Approved photos live under "<id>_image<N>.jpg", submissions wait
// under "pending_<id>_image<N>.jpg" until an admin approves or rejects them.
package gallery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jo-hoe/venicebridges/internal/backend/bridge"
	"github.com/jo-hoe/venicebridges/internal/backend/storage"
	"github.com/jo-hoe/venicebridges/internal/common"
)

const contentType = "image/jpeg"

type Image struct {
	Key      string `json:"key"`
	BridgeID string `json:"bridgeId"`
	Sequence int    `json:"sequence"`
	Pending  bool   `json:"pending"`
	URL      string `json:"url"`
	Alt      string `json:"alt"`
}

type Gallery struct {
	store storage.ObjectStore
	locks *prefixLocks
}

func New(store storage.ObjectStore) *Gallery {
	return &Gallery{store: store, locks: newPrefixLocks()}
}

// ListApproved returns the bridge's approved photos ordered by sequence.
func (g *Gallery) ListApproved(ctx context.Context, bridgeID string) ([]Image, error) {
	return g.list(ctx, ApprovedPrefix(bridgeID), func(info KeyInfo) bool {
		return !info.Pending && info.BridgeID == bridgeID
	})
}

// ListPending returns every submission awaiting moderation.
func (g *Gallery) ListPending(ctx context.Context) ([]Image, error) {
	return g.list(ctx, PendingRoot, func(info KeyInfo) bool {
		return info.Pending
	})
}

// SubmitPending stores a visitor upload in the pending namespace.
func (g *Gallery) SubmitPending(ctx context.Context, bridgeID string, jpeg []byte) (Image, error) {
	return g.putNext(ctx, bridgeID, jpeg, true)
}

// UploadApproved stores an admin upload directly in the approved namespace.
func (g *Gallery) UploadApproved(ctx context.Context, bridgeID string, jpeg []byte) (Image, error) {
	return g.putNext(ctx, bridgeID, jpeg, false)
}

// Approve copies a pending photo to the next free approved key and removes
// the pending copy. A failed delete leaves both copies in place.
func (g *Gallery) Approve(ctx context.Context, pendingKey string) (Image, error) {
	info, err := parsePending(pendingKey)
	if err != nil {
		return Image{}, err
	}

	unlock := g.locks.lock(ApprovedPrefix(info.BridgeID))
	defer unlock()

	next, err := g.next(ctx, info.BridgeID, false)
	if err != nil {
		return Image{}, err
	}
	approvedKey := ApprovedKey(info.BridgeID, next)

	if err := g.store.Copy(ctx, pendingKey, approvedKey); err != nil {
		return Image{}, fmt.Errorf("failed to copy %s to %s: %w", pendingKey, approvedKey, err)
	}
	if err := g.store.Delete(ctx, pendingKey); err != nil {
		log.Error().Str("key", pendingKey).Str("approved_key", approvedKey).Err(err).
			Msg("approved image copied but pending key could not be deleted")
		return Image{}, fmt.Errorf("failed to delete %s after approval: %w", pendingKey, err)
	}

	log.Info().Str("bridge_id", info.BridgeID).Str("key", pendingKey).Str("approved_key", approvedKey).
		Msg("approved image")
	return g.image(ctx, approvedKey, KeyInfo{BridgeID: info.BridgeID, Sequence: next})
}

// Reject deletes a pending photo.
func (g *Gallery) Reject(ctx context.Context, pendingKey string) error {
	info, err := parsePending(pendingKey)
	if err != nil {
		return err
	}
	if err := g.exists(ctx, pendingKey); err != nil {
		return err
	}
	if err := g.store.Delete(ctx, pendingKey); err != nil {
		return fmt.Errorf("failed to delete %s: %w", pendingKey, err)
	}
	log.Info().Str("bridge_id", info.BridgeID).Str("key", pendingKey).Msg("rejected image")
	return nil
}

func (g *Gallery) putNext(ctx context.Context, bridgeID string, jpeg []byte, pending bool) (Image, error) {
	if err := bridge.ValidateID(bridgeID); err != nil {
		return Image{}, err
	}
	prefix := ApprovedPrefix(bridgeID)
	if pending {
		prefix = PendingPrefix(bridgeID)
	}
	unlock := g.locks.lock(prefix)
	defer unlock()

	next, err := g.next(ctx, bridgeID, pending)
	if err != nil {
		return Image{}, err
	}
	key := ApprovedKey(bridgeID, next)
	if pending {
		key = PendingKey(bridgeID, next)
	}
	if err := g.store.Put(ctx, key, jpeg, contentType); err != nil {
		return Image{}, fmt.Errorf("failed to store %s: %w", key, err)
	}

	log.Info().Str("bridge_id", bridgeID).Str("key", key).Bool("pending", pending).Int("bytes", len(jpeg)).
		Msg("stored image")
	return g.image(ctx, key, KeyInfo{BridgeID: bridgeID, Sequence: next, Pending: pending})
}

func (g *Gallery) next(ctx context.Context, bridgeID string, pending bool) (int, error) {
	prefix := ApprovedPrefix(bridgeID)
	if pending {
		prefix = PendingPrefix(bridgeID)
	}
	objs, err := g.store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return nextSequence(keys, bridgeID, pending), nil
}

func (g *Gallery) list(ctx context.Context, prefix string, keep func(KeyInfo) bool) ([]Image, error) {
	objs, err := g.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	images := make([]Image, 0, len(objs))
	for _, o := range objs {
		info, err := ParseKey(o.Key)
		if err != nil {
			log.Debug().Str("key", o.Key).Msg("ignoring foreign key in bucket")
			continue
		}
		if !keep(info) {
			continue
		}
		img, err := g.image(ctx, o.Key, info)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	sort.SliceStable(images, func(i, j int) bool {
		if images[i].BridgeID != images[j].BridgeID {
			return images[i].BridgeID < images[j].BridgeID
		}
		return images[i].Sequence < images[j].Sequence
	})
	return images, nil
}

func (g *Gallery) image(ctx context.Context, key string, info KeyInfo) (Image, error) {
	u, err := g.store.URL(ctx, key)
	if err != nil {
		return Image{}, fmt.Errorf("failed to resolve url for %s: %w", key, err)
	}
	return Image{
		Key:      key,
		BridgeID: info.BridgeID,
		Sequence: info.Sequence,
		Pending:  info.Pending,
		URL:      u,
		Alt:      info.BridgeID + " Image",
	}, nil
}

func (g *Gallery) exists(ctx context.Context, key string) error {
	objs, err := g.store.List(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", key, err)
	}
	for _, o := range objs {
		if o.Key == key {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", common.ErrNotFound, key)
}

func parsePending(key string) (KeyInfo, error) {
	info, err := ParseKey(key)
	if err != nil {
		return KeyInfo{}, err
	}
	if !info.Pending {
		return KeyInfo{}, fmt.Errorf("%w: %q is not a pending key", common.ErrInvalidKey, key)
	}
	if err := bridge.ValidateID(info.BridgeID); err != nil {
		return KeyInfo{}, fmt.Errorf("%w: %v", common.ErrInvalidKey, err)
	}
	return info, nil
}

// prefixLocks hands out one mutex per key prefix.
type prefixLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPrefixLocks() *prefixLocks {
	return &prefixLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *prefixLocks) lock(prefix string) func() {
	p.mu.Lock()
	l, ok := p.locks[prefix]
	if !ok {
		l = &sync.Mutex{}
		p.locks[prefix] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
