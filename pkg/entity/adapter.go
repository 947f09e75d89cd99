package entity

import (
	"errors"
	"fmt"

	"entitydb/pkg/clock"
)

var (
	ErrEmptyIndexName     = errors.New("entitydb: index name is empty")
	ErrDuplicateIndexName = errors.New("entitydb: duplicate index name")
)

// KeySource selects the counter behind synthetic primary keys.
type KeySource uint8

const (
	// PerInstanceKeys numbers keyless entities per adapter, starting at 1.
	PerInstanceKeys KeySource = iota
	// SharedKeys draws from one process-wide counter, so synthetic keys are
	// unique across adapters.
	SharedKeys
)

// IndexDefinition configures one secondary index. A zero Selector reads the
// field named after the index. MultiEntry and Unique are hints only: they are
// never enforced, a violated Unique hint is reported in development mode.
type IndexDefinition[T any] struct {
	Name       string
	Selector   Selector[T]
	MultiEntry bool
	Unique     bool
}

// Indexes builds field-named index definitions.
func Indexes[T any](names ...string) []IndexDefinition[T] {
	defs := make([]IndexDefinition[T], 0, len(names))
	for _, name := range names {
		defs = append(defs, IndexDefinition[T]{Name: name})
	}
	return defs
}

// MergeFunc shallow-merges changes onto an entity, returning a new value.
type MergeFunc[T any] func(entity T, changes map[string]any) T

// Definition configures an Adapter.
type Definition[T any] struct {
	// Key selects the primary key. Without it every entity gets a synthetic
	// key and keys keep insertion order.
	Key         Selector[T]
	Indexes     []IndexDefinition[T]
	Keys        KeySource
	Merge       MergeFunc[T]
	Diagnostics Diagnostics
}

// Update is a partial update of the entity stored under Key.
type Update[T any] struct {
	Key     Key
	Changes map[string]any
}

// KeyedMap transforms the entity stored under Key.
type KeyedMap[T any] struct {
	Key Key
	Map func(T) T
}

// Adapter applies copy-on-write operations to snapshots. It holds no
// snapshot state; callers serialize operations on one logical store.
type Adapter[T any] struct {
	key     Selector[T]
	indexes []IndexDefinition[T]
	seq     *clock.AtomicClock
	merge   MergeFunc[T]
	diag    Diagnostics
}

func NewAdapter[T any](def Definition[T]) (*Adapter[T], error) {
	seen := make(map[string]struct{}, len(def.Indexes))
	indexes := make([]IndexDefinition[T], 0, len(def.Indexes))
	for _, ix := range def.Indexes {
		if ix.Name == "" {
			return nil, ErrEmptyIndexName
		}
		if _, dup := seen[ix.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIndexName, ix.Name)
		}
		seen[ix.Name] = struct{}{}

		if ix.Selector.IsZero() {
			ix.Selector = Field[T](ix.Name)
		}
		indexes = append(indexes, ix)
	}

	seq := clock.NewAtomic(0)
	if def.Keys == SharedKeys {
		seq = clock.Shared()
	}

	merge := def.Merge
	if merge == nil {
		merge = ShallowMerge[T]
	}

	return &Adapter[T]{
		key:     def.Key,
		indexes: indexes,
		seq:     seq,
		merge:   merge,
		diag:    def.Diagnostics,
	}, nil
}

// MustAdapter is NewAdapter that panics on an invalid definition.
func MustAdapter[T any](def Definition[T]) *Adapter[T] {
	a, err := NewAdapter(def)
	if err != nil {
		panic(err)
	}
	return a
}

// KeySelector returns the primary key selector, zero when keys are synthetic.
func (a *Adapter[T]) KeySelector() Selector[T] {
	return a.key
}

// InitialState returns an empty snapshot holding every configured index.
func (a *Adapter[T]) InitialState() *Snapshot[T] {
	return &Snapshot[T]{
		keys:     []Key{},
		entities: map[Key]T{},
		indexes:  a.emptyIndexes(),
	}
}

func (a *Adapter[T]) emptyIndexes() map[string]*Index {
	indexes := make(map[string]*Index, len(a.indexes))
	for _, ix := range a.indexes {
		indexes[ix.Name] = newIndex()
	}
	return indexes
}

// PrimaryKey returns the key entity would be stored under, or false when it
// would get a synthetic key.
func (a *Adapter[T]) PrimaryKey(entity T) (Key, bool) {
	if a.key.IsZero() {
		return nil, false
	}
	k, ok := DeriveKey(entity, a.key)
	if !ok {
		return nil, false
	}
	return checkKey(k), true
}

// primaryKey derives the key of an incoming entity, minting a synthetic key
// when there is none.
func (a *Adapter[T]) primaryKey(entity T) (Key, bool) {
	if a.key.IsZero() {
		return a.syntheticKey(), false
	}
	k, ok := DeriveKeyChecked(entity, a.key, a.diag)
	if !ok {
		return a.syntheticKey(), false
	}
	return checkKey(k), true
}

func (a *Adapter[T]) syntheticKey() Key {
	return int64(a.seq.Next())
}

func (a *Adapter[T]) indexKey(ix IndexDefinition[T], entity T) (Key, bool) {
	k, ok := DeriveKey(entity, ix.Selector)
	if !ok {
		return nil, false
	}
	return checkKey(k), true
}

func (a *Adapter[T]) indexKeyChecked(ix IndexDefinition[T], entity T) (Key, bool) {
	k, ok := DeriveKeyChecked(entity, ix.Selector, a.diag)
	if !ok {
		return nil, false
	}
	return checkKey(k), true
}
