package entity

// change is a resolved update: apply computes the new value of the entity
// stored under key.
type change[T any] struct {
	key   Key
	apply func(T) T
}

func (t *txn[T]) addMany(entities []T) Mutation {
	items := make([]item[T], 0, len(entities))
	seen := make(map[Key]struct{}, len(entities))
	for _, e := range entities {
		pk, _ := t.a.primaryKey(e)
		if _, exists := t.entities[pk]; exists {
			continue
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		items = append(items, item[T]{pk: pk, entity: e})
	}

	if len(items) == 0 {
		return None
	}
	t.merge(items)
	return Both
}

func (t *txn[T]) setAll(entities []T) Mutation {
	t.reset()
	t.addMany(entities)
	return Both
}

// setMany replaces whole entities that exist and adds the others.
func (t *txn[T]) setMany(entities []T) Mutation {
	if t.a.key.IsZero() {
		return t.addMany(entities)
	}

	var (
		replaced []change[T]
		added    []T
	)
	for _, e := range lastPerKey(t.a, entities) {
		pk, ok := t.a.PrimaryKey(e)
		if !ok {
			added = append(added, e)
			continue
		}
		if _, exists := t.entities[pk]; exists {
			replaced = append(replaced, change[T]{key: pk, apply: replaceWith(e)})
		} else {
			added = append(added, e)
		}
	}

	return t.updateMany(replaced).Join(t.addMany(added))
}

// upsertMany merges existing entities field by field and adds the others.
func (t *txn[T]) upsertMany(entities []T) Mutation {
	if t.a.key.IsZero() {
		return t.addMany(entities)
	}

	var (
		updated []change[T]
		added   []T
	)
	for _, e := range lastPerKey(t.a, entities) {
		pk, ok := t.a.PrimaryKey(e)
		if ok {
			if _, exists := t.entities[pk]; exists {
				changes := Fields(e)
				updated = append(updated, change[T]{key: pk, apply: func(old T) T {
					return t.a.merge(old, changes)
				}})
				continue
			}
		}
		added = append(added, e)
	}

	return t.updateMany(updated).Join(t.addMany(added))
}

// lastPerKey drops all but the last entity of every primary key. Keyless
// entities are all kept.
func lastPerKey[T any](a *Adapter[T], entities []T) []T {
	if len(entities) < 2 {
		return entities
	}

	last := make(map[Key]int, len(entities))
	keys := make([]Key, len(entities))
	for i, e := range entities {
		if pk, ok := a.PrimaryKey(e); ok {
			keys[i] = pk
			last[pk] = i
		}
	}

	out := make([]T, 0, len(entities))
	for i, e := range entities {
		if keys[i] == nil || last[keys[i]] == i {
			out = append(out, e)
		}
	}
	return out
}

func (t *txn[T]) removeMany(keys []Key) Mutation {
	removed := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if k == nil {
			continue
		}
		k = NormalizeKey(k)
		if _, ok := t.entities[k]; ok {
			removed[k] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return None
	}

	entities := t.writableEntities()
	for k := range removed {
		t.unindex(k, entities[k])
		delete(entities, k)
	}
	t.dropKeys(removed)
	return Both
}

func (t *txn[T]) removeWhere(pred func(T) bool) Mutation {
	var keys []Key
	for _, k := range t.keys {
		if pred(t.entities[k]) {
			keys = append(keys, k)
		}
	}
	return t.removeMany(keys)
}

type resolved[T any] struct {
	oldKey, newKey Key
	old, next      T
}

// updateMany applies changes to existing entities. Updates of keys that are
// absent, or already updated in this batch, are dropped. The key order is
// only rebuilt when a primary key changed.
func (t *txn[T]) updateMany(changes []change[T]) Mutation {
	var (
		updates    []resolved[T]
		consumed   = make(map[Key]struct{}, len(changes))
		keyChanged = false
	)
	for _, c := range changes {
		if c.key == nil {
			continue
		}
		k := NormalizeKey(c.key)
		old, ok := t.entities[k]
		if !ok {
			continue
		}
		if _, done := consumed[k]; done {
			continue
		}
		consumed[k] = struct{}{}

		next := c.apply(old)
		nk := k
		if !t.a.key.IsZero() {
			if derived, ok := DeriveKeyChecked(next, t.a.key, t.a.diag); ok {
				nk = checkKey(derived)
			}
		}
		if nk != k {
			keyChanged = true
		}
		updates = append(updates, resolved[T]{oldKey: k, newKey: nk, old: old, next: next})
	}

	if len(updates) == 0 {
		return None
	}

	entities := t.writableEntities()
	items := make([]item[T], 0, len(updates))
	moved := make(map[Key]struct{})
	for _, u := range updates {
		delete(entities, u.oldKey)

		it := item[T]{pk: u.newKey, entity: u.next, retained: u.oldKey == u.newKey}
		if it.retained {
			it.inPlace = make([]bool, len(t.a.indexes))
		} else {
			moved[u.oldKey] = struct{}{}
		}

		for i, def := range t.a.indexes {
			oi, hadOld := t.a.indexKey(def, u.old)
			if it.retained {
				ni, hasNew := t.a.indexKey(def, u.next)
				if hadOld == hasNew && oi == ni {
					it.inPlace[i] = true
					continue
				}
			}
			if hadOld {
				t.removeFromBucket(def.Name, oi, u.oldKey)
			}
		}
		items = append(items, it)
	}

	if keyChanged {
		t.dropKeys(moved)
	}
	t.merge(items)

	if keyChanged {
		return Both
	}
	return EntitiesOnly
}

// mapEntities turns every reference-changed result of fn into a whole-value
// update.
func (t *txn[T]) mapEntities(fn func(T) T) Mutation {
	var changes []change[T]
	for _, k := range t.keys {
		e := t.entities[k]
		next := fn(e)
		if SameEntity(e, next) {
			continue
		}
		changes = append(changes, change[T]{key: k, apply: replaceWith(next)})
	}
	return t.updateMany(changes)
}

func (t *txn[T]) mapOne(m KeyedMap[T]) Mutation {
	if m.Key == nil || m.Map == nil {
		return None
	}
	k := NormalizeKey(m.Key)
	e, ok := t.entities[k]
	if !ok {
		return None
	}
	next := m.Map(e)
	if SameEntity(e, next) {
		return None
	}
	return t.updateMany([]change[T]{{key: k, apply: replaceWith(next)}})
}

func replaceWith[T any](next T) func(T) T {
	return func(T) T { return next }
}
