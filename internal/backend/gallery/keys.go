package gallery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jo-hoe/venicebridges/internal/common"
)

const (
	// PendingRoot prefixes every key awaiting moderation.
	PendingRoot = "pending_"

	imageMarker = "_image"
	extension   = ".jpg"
)

// KeyInfo is a parsed image key.
type KeyInfo struct {
	BridgeID string
	Sequence int
	Pending  bool
}

func ApprovedPrefix(bridgeID string) string {
	return bridgeID + imageMarker
}

func PendingPrefix(bridgeID string) string {
	return PendingRoot + bridgeID + imageMarker
}

func ApprovedKey(bridgeID string, seq int) string {
	return fmt.Sprintf("%s%d%s", ApprovedPrefix(bridgeID), seq, extension)
}

func PendingKey(bridgeID string, seq int) string {
	return fmt.Sprintf("%s%d%s", PendingPrefix(bridgeID), seq, extension)
}

// ParseKey splits "[pending_]<id>_image<N>.jpg". The id is everything before
// the last "_image" so ids may contain underscores.
func ParseKey(key string) (KeyInfo, error) {
	var info KeyInfo
	rest := key
	if strings.HasPrefix(rest, PendingRoot) {
		info.Pending = true
		rest = strings.TrimPrefix(rest, PendingRoot)
	}
	if !strings.HasSuffix(rest, extension) {
		return KeyInfo{}, fmt.Errorf("%w: %q has no %s extension", common.ErrInvalidKey, key, extension)
	}
	rest = strings.TrimSuffix(rest, extension)

	i := strings.LastIndex(rest, imageMarker)
	if i <= 0 {
		return KeyInfo{}, fmt.Errorf("%w: %q has no bridge id", common.ErrInvalidKey, key)
	}
	info.BridgeID = rest[:i]

	seq, ok := parseSequence(rest[i+len(imageMarker):])
	if !ok {
		return KeyInfo{}, fmt.Errorf("%w: %q has no sequence number", common.ErrInvalidKey, key)
	}
	info.Sequence = seq
	return info, nil
}

// parseSequence accepts only the form keys are written in: decimal digits
// without sign or leading zero.
func parseSequence(s string) (int, bool) {
	if s == "" || s[0] == '0' {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// nextSequence is one past the highest sequence among the bridge's keys in
// one namespace. Keys that do not parse are ignored.
func nextSequence(keys []string, bridgeID string, pending bool) int {
	highest := 0
	for _, k := range keys {
		info, err := ParseKey(k)
		if err != nil || info.Pending != pending || info.BridgeID != bridgeID {
			continue
		}
		if info.Sequence > highest {
			highest = info.Sequence
		}
	}
	return highest + 1
}
