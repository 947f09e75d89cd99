package entity

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

func SelectKeys[T any](s *Snapshot[T]) []Key {
	return s.keys
}

func SelectEntities[T any](s *Snapshot[T]) map[Key]T {
	return s.entities
}

// SelectAll returns the entities in primary key order.
func SelectAll[T any](s *Snapshot[T]) []T {
	out := make([]T, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.entities[k])
	}
	return out
}

func SelectTotal[T any](s *Snapshot[T]) int {
	return len(s.keys)
}

func SelectIndexKeys[T any](name string) func(*Snapshot[T]) []Key {
	return func(s *Snapshot[T]) []Key {
		return s.Index(name).Keys()
	}
}

func SelectIndexEntities[T any](name string) func(*Snapshot[T]) map[Key][]Key {
	return func(s *Snapshot[T]) map[Key][]Key {
		return s.Index(name).Buckets()
	}
}

// SelectIndexAll flattens the buckets of an index into entities, in index
// key order and then primary key order.
func SelectIndexAll[T any](name string) func(*Snapshot[T]) []T {
	return func(s *Snapshot[T]) []T {
		ix := s.Index(name)
		if ix == nil {
			return nil
		}
		out := make([]T, 0, len(s.keys))
		for _, ik := range ix.keys {
			for _, pk := range ix.buckets[ik] {
				out = append(out, s.entities[pk])
			}
		}
		return out
	}
}

// SelectBucket returns the entities sharing one index key, in primary order.
func SelectBucket[T any](s *Snapshot[T], name string, value any) []T {
	pks := s.Index(name).Bucket(value)
	out := make([]T, 0, len(pks))
	for _, pk := range pks {
		out = append(out, s.entities[pk])
	}
	return out
}

type indexView[T any] struct {
	snap *Snapshot[T]
	name string
}

// Selectors memoizes the flattening selectors per snapshot. Transforms
// return the very same snapshot when nothing changed, so identity is a
// valid cache key.
type Selectors[T any] struct {
	all      *lru.Cache[*Snapshot[T], []T]
	indexAll *lru.Cache[indexView[T], []T]
}

// NewSelectors keeps the results of the last size snapshots.
func NewSelectors[T any](size int) (*Selectors[T], error) {
	all, err := lru.New[*Snapshot[T], []T](size)
	if err != nil {
		return nil, err
	}
	indexAll, err := lru.New[indexView[T], []T](size)
	if err != nil {
		return nil, err
	}
	return &Selectors[T]{all: all, indexAll: indexAll}, nil
}

func (m *Selectors[T]) All(s *Snapshot[T]) []T {
	if out, ok := m.all.Get(s); ok {
		return out
	}
	out := SelectAll(s)
	m.all.Add(s, out)
	return out
}

func (m *Selectors[T]) IndexAll(name string, s *Snapshot[T]) []T {
	key := indexView[T]{snap: s, name: name}
	if out, ok := m.indexAll.Get(key); ok {
		return out
	}
	out := SelectIndexAll[T](name)(s)
	m.indexAll.Add(key, out)
	return out
}

func (m *Selectors[T]) Purge() {
	m.all.Purge()
	m.indexAll.Purge()
}
