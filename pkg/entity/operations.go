package entity

// Every operation takes a snapshot and returns the next one. The input is
// never modified. When nothing changes the input itself is returned; when
// only entity payloads change the keys slice of the input is reused.

func (a *Adapter[T]) AddOne(entity T, s *Snapshot[T]) *Snapshot[T] {
	return a.AddMany([]T{entity}, s)
}

// AddMany adds entities whose primary key is not present yet. Within the
// batch the first entity of a key wins.
func (a *Adapter[T]) AddMany(entities []T, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.addMany(entities) })
}

// SetAll replaces the whole content of s with entities.
func (a *Adapter[T]) SetAll(entities []T, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.setAll(entities) })
}

func (a *Adapter[T]) SetOne(entity T, s *Snapshot[T]) *Snapshot[T] {
	return a.SetMany([]T{entity}, s)
}

// SetMany replaces existing entities as a whole and adds the missing ones.
// Within the batch the last entity of a key wins.
func (a *Adapter[T]) SetMany(entities []T, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.setMany(entities) })
}

func (a *Adapter[T]) RemoveOne(key Key, s *Snapshot[T]) *Snapshot[T] {
	return a.RemoveMany([]Key{key}, s)
}

// RemoveMany removes the given primary keys. Absent keys are ignored.
func (a *Adapter[T]) RemoveMany(keys []Key, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.removeMany(keys) })
}

// RemoveWhere removes the entities matching pred.
func (a *Adapter[T]) RemoveWhere(pred func(T) bool, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.removeWhere(pred) })
}

// RemoveAll returns the initial state.
func (a *Adapter[T]) RemoveAll(s *Snapshot[T]) *Snapshot[T] {
	return a.InitialState()
}

func (a *Adapter[T]) UpdateOne(update Update[T], s *Snapshot[T]) *Snapshot[T] {
	return a.UpdateMany([]Update[T]{update}, s)
}

// UpdateMany shallow-merges the changes of every update onto the entity
// stored under its key. Updates of absent keys are dropped. An update may
// change the primary key.
func (a *Adapter[T]) UpdateMany(updates []Update[T], s *Snapshot[T]) *Snapshot[T] {
	changes := make([]change[T], 0, len(updates))
	for _, u := range updates {
		changes = append(changes, change[T]{key: u.Key, apply: func(old T) T {
			return a.merge(old, u.Changes)
		}})
	}
	return a.run(s, func(t *txn[T]) Mutation { return t.updateMany(changes) })
}

func (a *Adapter[T]) UpsertOne(entity T, s *Snapshot[T]) *Snapshot[T] {
	return a.UpsertMany([]T{entity}, s)
}

// UpsertMany merges entities into existing ones field by field and adds the
// missing ones.
func (a *Adapter[T]) UpsertMany(entities []T, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.upsertMany(entities) })
}

// Map replaces every entity for which fn returns a different value.
func (a *Adapter[T]) Map(fn func(T) T, s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.mapEntities(fn) })
}

// MapOne replaces the entity stored under m.Key with m.Map of it.
func (a *Adapter[T]) MapOne(m KeyedMap[T], s *Snapshot[T]) *Snapshot[T] {
	return a.run(s, func(t *txn[T]) Mutation { return t.mapOne(m) })
}
