// Package domain defines the persisted record shared by every numbering
// operation: per-key consumption arrays plus the reserved authorization,
// range and upgrade bookkeeping.
package domain

import (
	"slices"
	"strconv"
	"strings"
)

// Range is an inclusive interval of assignable numbers.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether n lies within the range bounds.
func (r Range) Contains(n int) bool {
	return n >= r.From && n <= r.To
}

// Valid reports whether the range is non-empty and positive.
func (r Range) Valid() bool {
	return r.From > 0 && r.From <= r.To
}

// RangesContain reports whether any range in ranges contains n.
func RangesContain(ranges []Range, n int) bool {
	for _, r := range ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// AuthorizedUser records who authorized an entity and when.
type AuthorizedUser struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Authorization holds the shared secret that gates writes for an entity.
type Authorization struct {
	Key  string          `json:"key"`
	User *AuthorizedUser `json:"user,omitempty"`
}

// Entity is the single persisted record per namespace. Consumptions maps a
// consumption key to its consumed numbers, sorted ascending without duplicates.
//
// Entities are treated as immutable once handed to a transition: mutations
// always operate on a Clone and replace slices rather than editing them.
type Entity struct {
	Consumptions  map[string][]int
	Authorization *Authorization
	Ranges        []Range
	UpgradeTags   []string
}

// NewEntity returns an empty entity ready for mutation.
func NewEntity() *Entity {
	return &Entity{Consumptions: make(map[string][]int)}
}

// Clone returns a shallow copy: the consumption map is new, but the slices it
// holds and the reserved fields are shared with the receiver.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return NewEntity()
	}
	out := &Entity{
		Consumptions:  make(map[string][]int, len(e.Consumptions)),
		Authorization: e.Authorization,
		Ranges:        e.Ranges,
		UpgradeTags:   e.UpgradeTags,
	}
	for k, v := range e.Consumptions {
		out.Consumptions[k] = v
	}
	return out
}

// Consumed returns the consumed numbers recorded for key.
func (e *Entity) Consumed(key string) []int {
	if e == nil {
		return nil
	}
	return e.Consumptions[key]
}

// HasUpgradeTag reports whether tag has already been applied.
func (e *Entity) HasUpgradeTag(tag string) bool {
	if e == nil {
		return false
	}
	return slices.Contains(e.UpgradeTags, tag)
}

// Authorized reports whether a non-empty authorization key is present.
func (e *Entity) Authorized() bool {
	return e != nil && e.Authorization != nil && e.Authorization.Key != ""
}

// Key is a parsed consumption key. Extended keys ("type_NNN") scope numbering
// to the object identified by OwnerID.
type Key struct {
	Type    string
	OwnerID int
}

// Extended reports whether the key is scoped to an owning object.
func (k Key) Extended() bool { return k.OwnerID > 0 }

func (k Key) String() string {
	if !k.Extended() {
		return k.Type
	}
	return k.Type + "_" + strconv.Itoa(k.OwnerID)
}

// ParseKey splits raw into its type and optional owning object id. Keys whose
// suffix is not a positive integer are treated as bare type names.
func ParseKey(raw string) Key {
	idx := strings.LastIndexByte(raw, '_')
	if idx <= 0 || idx == len(raw)-1 {
		return Key{Type: raw}
	}
	owner, err := strconv.Atoi(raw[idx+1:])
	if err != nil || owner <= 0 {
		return Key{Type: raw}
	}
	return Key{Type: raw[:idx], OwnerID: owner}
}

// SortedUnique returns a sorted copy of ids with duplicates removed. The
// result is never nil.
func SortedUnique(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return slices.Compact(out)
}
