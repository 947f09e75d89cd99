package entity

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Year        *int   `json:"year,omitempty"`
	Editor      string `json:"editor,omitempty"`
}

func year(y int) *int { return &y }

var (
	aClockworkOrange = book{ID: "aco", Title: "A Clockwork Orange", Year: year(1970), Editor: "A editor"}
	animalFarm       = book{ID: "af", Title: "Animal Farm", Year: year(1960), Editor: "A editor"}
	theGreatGatsby   = book{
		ID:          "tgg",
		Title:       "The Great Gatsby",
		Description: "A 1925 novel written by American author F. Scott Fitzgerald",
		Editor:      "B editor",
	}
)

func newBookAdapter(t *testing.T) *Adapter[book] {
	t.Helper()
	a, err := NewAdapter(Definition[book]{
		Key: Func(func(b book) (any, bool) { return b.ID, b.ID != "" }),
		Indexes: []IndexDefinition[book]{
			{Name: "title", Selector: Field[book]("title")},
			{Name: "year", Selector: Func(func(b book) (any, bool) {
				if b.Year == nil {
					return nil, false
				}
				return *b.Year, true
			})},
			{Name: "editor"},
		},
	})
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	return a
}

type ix = map[Key][]Key

type indexState struct {
	Keys    []Key
	Buckets map[Key][]Key
}

type state[T any] struct {
	Keys     []Key
	Entities map[Key]T
	Indexes  map[string]indexState
}

func dump[T any](s *Snapshot[T]) state[T] {
	out := state[T]{
		Keys:     s.keys,
		Entities: s.entities,
		Indexes:  map[string]indexState{},
	}
	for name, idx := range s.indexes {
		out.Indexes[name] = indexState{Keys: idx.keys, Buckets: idx.buckets}
	}
	return out
}

// index builds the expected state of an index from its buckets; keys are
// listed in the order the index must hold them.
func index(keys []Key, buckets ix) indexState {
	return indexState{Keys: keys, Buckets: buckets}
}

func books(bs ...book) map[Key]book {
	out := make(map[Key]book, len(bs))
	for _, b := range bs {
		out[b.ID] = b
	}
	return out
}

func keys(ks ...Key) []Key { return ks }

func assertState[T any](t *testing.T, want state[T], got *Snapshot[T]) {
	t.Helper()
	if diff := cmp.Diff(want, dump(got), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

// checkInvariants verifies ordering and index consistency of s.
func checkInvariants[T any](t *testing.T, a *Adapter[T], s *Snapshot[T]) {
	t.Helper()

	if len(s.keys) != len(s.entities) {
		t.Fatalf("keys/entities size mismatch: %d keys, %d entities", len(s.keys), len(s.entities))
	}
	for i, k := range s.keys {
		if _, ok := s.entities[k]; !ok {
			t.Fatalf("key %v has no entity", k)
		}
		if i > 0 && compareKeys(s.keys[i-1], k) >= 0 {
			t.Fatalf("keys not strictly sorted at %d: %v", i, s.keys)
		}
	}

	for _, def := range a.indexes {
		idx, ok := s.indexes[def.Name]
		if !ok {
			t.Fatalf("index %q missing", def.Name)
		}
		if len(idx.keys) != len(idx.buckets) {
			t.Fatalf("index %q: %d keys for %d buckets", def.Name, len(idx.keys), len(idx.buckets))
		}
		for i, ik := range idx.keys {
			bucket := idx.buckets[ik]
			if len(bucket) == 0 {
				t.Fatalf("index %q: empty bucket %v", def.Name, ik)
			}
			if i > 0 && compareKeys(idx.keys[i-1], ik) >= 0 {
				t.Fatalf("index %q keys not sorted: %v", def.Name, idx.keys)
			}
			for j, pk := range bucket {
				if j > 0 && compareKeys(bucket[j-1], pk) >= 0 {
					t.Fatalf("index %q bucket %v not sorted: %v", def.Name, ik, bucket)
				}
				e, ok := s.entities[pk]
				if !ok {
					t.Fatalf("index %q bucket %v holds dangling key %v", def.Name, ik, pk)
				}
				if got, ok := a.indexKey(def, e); !ok || got != ik {
					t.Fatalf("index %q: %v filed under %v, derives %v", def.Name, pk, ik, got)
				}
			}
		}

		for pk, e := range s.entities {
			ik, ok := a.indexKey(def, e)
			count := 0
			for _, bucket := range idx.buckets {
				count += len(slices.DeleteFunc(slices.Clone(bucket), func(k Key) bool { return k != pk }))
			}
			switch {
			case ok && count != 1:
				t.Fatalf("index %q: %v appears %d times", def.Name, pk, count)
			case !ok && count != 0:
				t.Fatalf("index %q: keyless %v appears %d times", def.Name, pk, count)
			case ok && !slices.Contains(idx.buckets[ik], pk):
				t.Fatalf("index %q: %v missing from bucket %v", def.Name, pk, ik)
			}
		}
	}
}
