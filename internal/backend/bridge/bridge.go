// Package bridge holds the bridge catalog: records read from the external
// feature service, kept in memory and queried by id, name order, distance and
// map click position.
package bridge

import (
	"fmt"
	"strings"

	"github.com/jo-hoe/venicebridges/internal/common"
)

// pendingPrefix mirrors the gallery's pending namespace. A bridge id starting
// with it would make approved keys look pending.
const pendingPrefix = "pending_"

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Bridge struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    Location `json:"location"`
}

// FieldMapping names the feature attributes that carry bridge data.
type FieldMapping struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	History string `yaml:"history"`
}

// DefaultFieldMapping matches the Venice bridges feature layer.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		ID:      "birth_certificate_birthID",
		Name:    "data_Bridge_Name",
		History: "data_History",
	}
}

func (f FieldMapping) withDefaults() FieldMapping {
	d := DefaultFieldMapping()
	if f.ID == "" {
		f.ID = d.ID
	}
	if f.Name == "" {
		f.Name = d.Name
	}
	if f.History == "" {
		f.History = d.History
	}
	return f
}

// ValidateID rejects ids that cannot be embedded in a storage key.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", common.ErrInvalidBridgeID)
	case strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("%w: %q contains a path separator", common.ErrInvalidBridgeID, id)
	case strings.HasPrefix(id, pendingPrefix):
		return fmt.Errorf("%w: %q uses the reserved %q prefix", common.ErrInvalidBridgeID, id, pendingPrefix)
	}
	return nil
}

// attributeString formats a feature attribute value. Numeric ids come back
// from the feature service as JSON numbers.
func attributeString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

// fromAttributes builds a Bridge from a feature attribute map.
func fromAttributes(attrs map[string]any, fields FieldMapping, loc Location) (Bridge, error) {
	b := Bridge{
		ID:          strings.TrimSpace(attributeString(attrs[fields.ID])),
		Name:        attributeString(attrs[fields.Name]),
		Description: attributeString(attrs[fields.History]),
		Location:    loc,
	}
	if err := ValidateID(b.ID); err != nil {
		return Bridge{}, err
	}
	return b, nil
}
