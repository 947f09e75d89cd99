package entity

import (
	"maps"
	"slices"
)

// Mutation classifies how much of a snapshot an operation replaced.
type Mutation uint8

const (
	// None: the input snapshot is returned as is.
	None Mutation = iota
	// EntitiesOnly: entities and indexes are new, the keys slice is shared.
	EntitiesOnly
	// Both: every top-level field is new.
	Both
)

// Join combines the classifications of two sub-operations.
func (m Mutation) Join(other Mutation) Mutation {
	return max(m, other)
}

func (m Mutation) String() string {
	switch m {
	case None:
		return "none"
	case EntitiesOnly:
		return "entities"
	case Both:
		return "both"
	}
	return "unknown"
}

func (m Mutation) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Snapshot is an immutable, normalized collection of entities with its
// secondary indexes. Slices and maps returned by its accessors are shared
// with later snapshots and must not be modified.
type Snapshot[T any] struct {
	keys     []Key
	entities map[Key]T
	indexes  map[string]*Index
}

// Index maps derived index keys to the sorted primary keys sharing them.
type Index struct {
	keys    []Key
	buckets map[Key][]Key
}

func newIndex() *Index {
	return &Index{keys: []Key{}, buckets: map[Key][]Key{}}
}

func (ix *Index) clone() *Index {
	return &Index{keys: ix.keys, buckets: maps.Clone(ix.buckets)}
}

// Keys returns the distinct index keys in index order.
func (ix *Index) Keys() []Key {
	if ix == nil {
		return nil
	}
	return ix.keys
}

// Bucket returns the primary keys of entities whose index key is k.
func (ix *Index) Bucket(k any) []Key {
	if ix == nil || k == nil {
		return nil
	}
	return ix.buckets[NormalizeKey(k)]
}

// Buckets exposes the whole index-key to primary-keys mapping.
func (ix *Index) Buckets() map[Key][]Key {
	if ix == nil {
		return nil
	}
	return ix.buckets
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.keys)
}

// Keys returns the primary keys in primary order.
func (s *Snapshot[T]) Keys() []Key {
	return s.keys
}

// Entity returns the entity stored under k.
func (s *Snapshot[T]) Entity(k any) (T, bool) {
	if k == nil {
		var zero T
		return zero, false
	}
	e, ok := s.entities[NormalizeKey(k)]
	return e, ok
}

func (s *Snapshot[T]) Has(k any) bool {
	_, ok := s.Entity(k)
	return ok
}

// Entities exposes the primary-key to entity mapping.
func (s *Snapshot[T]) Entities() map[Key]T {
	return s.entities
}

func (s *Snapshot[T]) Len() int {
	return len(s.keys)
}

// Index returns the named index, nil if it is not configured.
func (s *Snapshot[T]) Index(name string) *Index {
	return s.indexes[name]
}

// IndexNames returns the configured index names, sorted.
func (s *Snapshot[T]) IndexNames() []string {
	return slices.Sorted(maps.Keys(s.indexes))
}

// Classify reports the classification of next relative to prev, relying on
// the reference guarantees of the transform operations.
func Classify[T any](prev, next *Snapshot[T]) Mutation {
	switch {
	case prev == next:
		return None
	case prev != nil && next != nil && sameKeys(prev.keys, next.keys):
		return EntitiesOnly
	}
	return Both
}

func sameKeys(a, b []Key) bool {
	// an EntitiesOnly transform always starts from a non-empty key set
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	return &a[0] == &b[0]
}
