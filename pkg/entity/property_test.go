package entity

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type doc = map[string]any

func randomDoc(r *rand.Rand) doc {
	d := doc{"id": fmt.Sprintf("k%02d", r.IntN(20))}
	if r.IntN(4) > 0 {
		d["group"] = r.IntN(5)
	}
	if r.IntN(3) > 0 {
		d["tag"] = []string{"red", "green", "blue"}[r.IntN(3)]
	}
	return d
}

func randomDocs(r *rand.Rand) []doc {
	out := make([]doc, r.IntN(4))
	for i := range out {
		out[i] = randomDoc(r)
	}
	return out
}

func randomKeys(r *rand.Rand) []Key {
	out := make([]Key, r.IntN(3)+1)
	for i := range out {
		out[i] = fmt.Sprintf("k%02d", r.IntN(20))
	}
	return out
}

func randomChanges(r *rand.Rand) map[string]any {
	switch r.IntN(4) {
	case 0:
		return map[string]any{"group": r.IntN(5)}
	case 1:
		return map[string]any{"tag": nil}
	case 2:
		return map[string]any{"id": fmt.Sprintf("k%02d", r.IntN(20))}
	}
	return map[string]any{"tag": "blue", "group": nil}
}

// deepDump copies every slice and map of s, so later writes into shared
// structures show up as a diff.
func deepDump[T any](s *Snapshot[T]) state[T] {
	out := state[T]{
		Keys:     slices.Clone(s.keys),
		Entities: maps.Clone(s.entities),
		Indexes:  map[string]indexState{},
	}
	for name, idx := range s.indexes {
		buckets := make(map[Key][]Key, len(idx.buckets))
		for ik, pks := range idx.buckets {
			buckets[ik] = slices.Clone(pks)
		}
		out.Indexes[name] = indexState{Keys: slices.Clone(idx.keys), Buckets: buckets}
	}
	return out
}

// TestAdapter_RandomOperations applies random operation sequences and checks
// that every result is consistent and that no input snapshot changes.
func TestAdapter_RandomOperations(t *testing.T) {
	a := MustAdapter(Definition[doc]{
		Key:     Field[doc]("id"),
		Indexes: Indexes[doc]("group", "tag"),
	})

	r := rand.New(rand.NewPCG(1, 2))
	for run := 0; run < 50; run++ {
		s := a.InitialState()
		for step := 0; step < 40; step++ {
			before := deepDump(s)

			var next *Snapshot[doc]
			switch op := r.IntN(9); op {
			case 0:
				next = a.AddMany(randomDocs(r), s)
			case 1:
				next = a.SetMany(randomDocs(r), s)
			case 2:
				next = a.UpsertMany(randomDocs(r), s)
			case 3:
				next = a.RemoveMany(randomKeys(r), s)
			case 4:
				var updates []Update[doc]
				for _, k := range randomKeys(r) {
					updates = append(updates, Update[doc]{Key: k, Changes: randomChanges(r)})
				}
				next = a.UpdateMany(updates, s)
			case 5:
				tag := []string{"red", "green", "blue"}[r.IntN(3)]
				next = a.RemoveWhere(func(d doc) bool { return d["tag"] == tag }, s)
			case 6:
				next = a.MapOne(KeyedMap[doc]{Key: randomKeys(r)[0], Map: func(d doc) doc {
					return ShallowMerge(d, map[string]any{"group": 4})
				}}, s)
			case 7:
				next = a.Map(func(d doc) doc {
					if d["group"] == 0 {
						return ShallowMerge(d, map[string]any{"tag": "red"})
					}
					return d
				}, s)
			default:
				next = a.SetAll(randomDocs(r), s)
			}

			checkInvariants(t, a, next)
			if diff := cmp.Diff(before, dump(s), cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("run %d step %d: input snapshot changed (-before +after):\n%s", run, step, diff)
			}

			switch Classify(s, next) {
			case None:
				if next != s {
					t.Fatalf("run %d step %d: None must return the input", run, step)
				}
			case EntitiesOnly:
				if !equalKeys(s.keys, next.keys) {
					t.Fatalf("run %d step %d: EntitiesOnly changed the key set", run, step)
				}
			}
			s = next
		}
	}
}
