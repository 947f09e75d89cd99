package entity

import "testing"

func TestSelectors(t *testing.T) {
	a := newBookAdapter(t)
	s := a.SetAll([]book{theGreatGatsby, aClockworkOrange, animalFarm}, a.InitialState())

	if got := SelectTotal(s); got != 3 {
		t.Fatalf("SelectTotal() = %d", got)
	}
	if got := SelectKeys(s); !equalKeys(got, keys("aco", "af", "tgg")) {
		t.Fatalf("SelectKeys() = %v", got)
	}
	if got := SelectEntities(s); len(got) != 3 || got["af"] != animalFarm {
		t.Fatalf("SelectEntities() = %v", got)
	}

	all := SelectAll(s)
	if len(all) != 3 || all[0].ID != "aco" || all[2].ID != "tgg" {
		t.Fatalf("SelectAll() = %v", all)
	}

	if got := SelectIndexKeys[book]("year")(s); !equalKeys(got, keys(int64(1960), int64(1970))) {
		t.Fatalf("SelectIndexKeys(year) = %v", got)
	}
	if got := SelectIndexEntities[book]("editor")(s); !equalKeys(got["A editor"], keys("aco", "af")) {
		t.Fatalf("SelectIndexEntities(editor) = %v", got)
	}

	byYear := SelectIndexAll[book]("year")(s)
	if len(byYear) != 2 || byYear[0].ID != "af" || byYear[1].ID != "aco" {
		t.Fatalf("SelectIndexAll(year) = %v", byYear)
	}
	if got := SelectIndexAll[book]("missing")(s); got != nil {
		t.Fatalf("SelectIndexAll(missing) = %v", got)
	}

	if got := SelectBucket(s, "year", 1970); len(got) != 1 || got[0].ID != "aco" {
		t.Fatalf("SelectBucket(year, 1970) = %v", got)
	}
	if got := SelectBucket(s, "missing", "x"); len(got) != 0 {
		t.Fatalf("SelectBucket(missing) = %v", got)
	}
}

func TestSelectors_Memoized(t *testing.T) {
	a := newBookAdapter(t)
	sel, err := NewSelectors[book](4)
	if err != nil {
		t.Fatalf("NewSelectors: %v", err)
	}

	s := a.SetAll([]book{theGreatGatsby, aClockworkOrange}, a.InitialState())
	first := sel.All(s)
	second := sel.All(a.AddOne(theGreatGatsby, s))
	if &first[0] != &second[0] {
		t.Fatal("a no-op transform must hit the cache")
	}

	next := a.AddOne(animalFarm, s)
	if got := sel.All(next); len(got) != 3 {
		t.Fatalf("expected a fresh result for a new snapshot, got %v", got)
	}

	titles := sel.IndexAll("title", next)
	if again := sel.IndexAll("title", next); &titles[0] != &again[0] {
		t.Fatal("index flattening must be cached per snapshot and index")
	}
	if years := sel.IndexAll("year", next); len(years) != 2 {
		t.Fatalf("expected 2 books with a year, got %v", years)
	}

	sel.Purge()
	if again := sel.All(s); &again[0] == &first[0] {
		t.Fatal("purge must drop cached results")
	}
}

func TestNewSelectors_InvalidSize(t *testing.T) {
	if _, err := NewSelectors[book](0); err == nil {
		t.Fatal("expected an error for a zero cache size")
	}
}
