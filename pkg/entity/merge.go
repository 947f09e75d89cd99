package entity

import (
	"slices"
)

type item[T any] struct {
	pk     Key
	entity T

	// retained: pk is still present in the key order
	retained bool
	// inPlace[i]: the entry of index i is already correct
	inPlace []bool
}

// mergeKeys merges two sorted, duplicate-free key sequences into a new one.
// A key present in both appears once.
func mergeKeys(incoming, existing []Key, cmp Comparator) []Key {
	out := make([]Key, 0, len(incoming)+len(existing))

	i, j := 0, 0
	for i < len(incoming) && j < len(existing) {
		switch c := cmp(incoming[i], existing[j]); {
		case c < 0:
			out = append(out, incoming[i])
			i++
		case c > 0:
			out = append(out, existing[j])
			j++
		default:
			out = append(out, existing[j])
			i++
			j++
		}
	}

	out = append(out, incoming[i:]...)
	return append(out, existing[j:]...)
}

// dedupeLast keeps the last item of every primary key and returns the
// overwritten ones separately.
func dedupeLast[T any](items []item[T]) ([]item[T], []item[T]) {
	last := make(map[Key]int, len(items))
	for i, it := range items {
		last[it.pk] = i
	}
	if len(last) == len(items) {
		return items, nil
	}

	kept := make([]item[T], 0, len(last))
	var dropped []item[T]
	for i, it := range items {
		if last[it.pk] == i {
			kept = append(kept, it)
		} else {
			dropped = append(dropped, it)
		}
	}
	return kept, dropped
}

// merge writes items into the working copy, keeping the key order and every
// index sorted.
func (t *txn[T]) merge(items []item[T]) {
	if len(items) == 0 {
		return
	}

	items, dropped := dedupeLast(items)
	for _, it := range dropped {
		t.releaseInPlace(it)
	}

	var pkCmp Comparator = compareKeys
	if !t.a.key.IsZero() {
		pkCmp = mustComparator(items[0].pk)
		slices.SortStableFunc(items, func(x, y item[T]) int {
			return pkCmp(x.pk, y.pk)
		})
	}

	entities := t.writableEntities()
	fresh := make([]Key, 0, len(items))
	for _, it := range items {
		if old, exists := entities[it.pk]; exists {
			t.unindex(it.pk, old)
		} else if !it.retained {
			fresh = append(fresh, it.pk)
		}
		entities[it.pk] = it.entity
	}
	if len(fresh) > 0 {
		t.keys = mergeKeys(fresh, t.keys, pkCmp)
	}

	for i, def := range t.a.indexes {
		t.mergeIndex(i, def, items, pkCmp)
	}
}

// releaseInPlace removes the index entries an overwritten item left behind.
func (t *txn[T]) releaseInPlace(it item[T]) {
	for i, def := range t.a.indexes {
		if i < len(it.inPlace) && it.inPlace[i] {
			if ik, ok := t.a.indexKey(def, it.entity); ok {
				t.removeFromBucket(def.Name, ik, it.pk)
			}
		}
	}
}

type indexEntry struct {
	ik, pk Key
}

func (t *txn[T]) mergeIndex(pos int, def IndexDefinition[T], items []item[T], pkCmp Comparator) {
	entries := make([]indexEntry, 0, len(items))
	for _, it := range items {
		if pos < len(it.inPlace) && it.inPlace[pos] {
			continue
		}
		if ik, ok := t.a.indexKeyChecked(def, it.entity); ok {
			entries = append(entries, indexEntry{ik: ik, pk: it.pk})
		}
	}
	if len(entries) == 0 {
		return
	}

	ikCmp := mustComparator(entries[0].ik)
	slices.SortStableFunc(entries, func(x, y indexEntry) int {
		if c := ikCmp(x.ik, y.ik); c != 0 {
			return c
		}
		return pkCmp(x.pk, y.pk)
	})

	distinct := make([]Key, 0, len(entries))
	for i, e := range entries {
		if i == 0 || ikCmp(entries[i-1].ik, e.ik) != 0 {
			distinct = append(distinct, e.ik)
		}
	}

	ix := t.writableIndex(def.Name)
	ix.keys = mergeKeys(distinct, ix.keys, ikCmp)

	for start := 0; start < len(entries); {
		end := start + 1
		for end < len(entries) && entries[end].ik == entries[start].ik {
			end++
		}

		group := make([]Key, 0, end-start)
		for _, e := range entries[start:end] {
			group = append(group, e.pk)
		}
		ik := entries[start].ik
		ix.buckets[ik] = mergeKeys(group, ix.buckets[ik], pkCmp)

		if def.Unique && len(ix.buckets[ik]) > 1 && t.a.diag.Mode == ModeDevelopment {
			t.a.diag.logger().Warn("unique index holds several entities for one key",
				"index", def.Name,
				"key", ik,
				"count", len(ix.buckets[ik]),
			)
		}
		start = end
	}
}
