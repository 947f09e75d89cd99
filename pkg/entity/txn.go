package entity

import (
	"maps"
	"slices"
)

// txn is the working copy of one operation. Substructures are shared with
// the base snapshot until first written: entities and the index table are
// cloned lazily, every index on first touch. Key slices and buckets are
// never written in place, only replaced.
type txn[T any] struct {
	a    *Adapter[T]
	base *Snapshot[T]

	keys     []Key
	entities map[Key]T
	indexes  map[string]*Index

	ownEntities bool
	ownIndexes  bool
	owned       map[string]bool
	pruned      map[string]bool
}

func (a *Adapter[T]) begin(s *Snapshot[T]) *txn[T] {
	if s == nil {
		s = a.InitialState()
	}
	return &txn[T]{
		a:        a,
		base:     s,
		keys:     s.keys,
		entities: s.entities,
		indexes:  s.indexes,
		owned:    map[string]bool{},
		pruned:   map[string]bool{},
	}
}

// run applies op to a working copy of s and promotes the result.
func (a *Adapter[T]) run(s *Snapshot[T], op func(t *txn[T]) Mutation) *Snapshot[T] {
	t := a.begin(s)
	return t.commit(op(t))
}

func (t *txn[T]) commit(m Mutation) *Snapshot[T] {
	t.compactIndexes()

	switch m {
	case None:
		return t.base
	case EntitiesOnly:
		return &Snapshot[T]{
			keys:     t.base.keys,
			entities: t.entities,
			indexes:  t.indexes,
		}
	}
	return &Snapshot[T]{
		keys:     t.keys,
		entities: t.entities,
		indexes:  t.indexes,
	}
}

// reset drops all content and keeps the configured indexes, empty.
func (t *txn[T]) reset() {
	t.keys = []Key{}
	t.entities = map[Key]T{}
	t.indexes = t.a.emptyIndexes()
	t.ownEntities = true
	t.ownIndexes = true
	for name := range t.indexes {
		t.owned[name] = true
	}
	clear(t.pruned)
}

func (t *txn[T]) writableEntities() map[Key]T {
	if !t.ownEntities {
		t.entities = maps.Clone(t.entities)
		if t.entities == nil {
			t.entities = map[Key]T{}
		}
		t.ownEntities = true
	}
	return t.entities
}

func (t *txn[T]) writableIndex(name string) *Index {
	if !t.ownIndexes {
		t.indexes = maps.Clone(t.indexes)
		if t.indexes == nil {
			t.indexes = map[string]*Index{}
		}
		t.ownIndexes = true
	}
	if t.owned[name] {
		return t.indexes[name]
	}

	ix, ok := t.indexes[name]
	if ok {
		ix = ix.clone()
	} else {
		ix = newIndex()
	}
	t.indexes[name] = ix
	t.owned[name] = true
	return ix
}

// unindex removes pk from every bucket the entity occupies.
func (t *txn[T]) unindex(pk Key, entity T) {
	for _, def := range t.a.indexes {
		if ik, ok := t.a.indexKey(def, entity); ok {
			t.removeFromBucket(def.Name, ik, pk)
		}
	}
}

func (t *txn[T]) removeFromBucket(name string, ik, pk Key) {
	cur, ok := t.indexes[name]
	if !ok {
		return
	}
	pos := slices.Index(cur.buckets[ik], pk)
	if pos < 0 {
		return
	}

	ix := t.writableIndex(name)
	bucket := ix.buckets[ik]
	if len(bucket) == 1 {
		delete(ix.buckets, ik)
		t.pruned[name] = true
		return
	}

	next := make([]Key, 0, len(bucket)-1)
	next = append(next, bucket[:pos]...)
	ix.buckets[ik] = append(next, bucket[pos+1:]...)
}

// compactIndexes drops the index keys whose buckets were emptied.
func (t *txn[T]) compactIndexes() {
	for name := range t.pruned {
		ix := t.indexes[name]
		ix.keys = slices.DeleteFunc(slices.Clone(ix.keys), func(k Key) bool {
			_, live := ix.buckets[k]
			return !live
		})
	}
	clear(t.pruned)
}

// dropKeys filters the removed primary keys out of the key order.
func (t *txn[T]) dropKeys(removed map[Key]struct{}) {
	keys := make([]Key, 0, len(t.keys))
	for _, k := range t.keys {
		if _, gone := removed[k]; !gone {
			keys = append(keys, k)
		}
	}
	t.keys = keys
}
