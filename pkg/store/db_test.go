package store

import (
	"errors"
	"slices"
	"testing"

	"entitydb/pkg/config"
	"entitydb/pkg/dberrors"
)

func openDB(t *testing.T, names ...string) *DB {
	t.Helper()
	cfg := config.Default()
	for _, name := range names {
		cfg.Collections = append(cfg.Collections, config.CollectionConfig{Name: name, Key: "id"})
	}
	db, err := Open(cfg, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_Catalog(t *testing.T) {
	db := openDB(t, "users", "books", "notes")

	if got := db.Names(); !slices.Equal(got, []string{"books", "notes", "users"}) {
		t.Fatalf("Names() = %v", got)
	}

	books, err := db.Collection("books")
	if err != nil {
		t.Fatalf("Collection failed: %v", err)
	}
	if _, err := books.Add(Document{"id": "x"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if _, err := db.Collection("nope"); !errors.Is(err, dberrors.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestDB_CreateAndDrop(t *testing.T) {
	db := openDB(t, "users")

	if _, err := db.Create(config.CollectionConfig{Name: "users"}); !errors.Is(err, dberrors.ErrInvalidArgument) {
		t.Fatalf("expected a duplicate name error, got %v", err)
	}
	if _, err := db.Create(config.CollectionConfig{Name: "a/b"}); !errors.Is(err, dberrors.ErrInvalidArgument) {
		t.Fatalf("expected an invalid name error, got %v", err)
	}
	if _, err := db.Create(config.CollectionConfig{
		Name:    "dup",
		Indexes: []config.IndexConfig{{Name: "x"}, {Name: "x"}},
	}); !errors.Is(err, dberrors.ErrInvalidArgument) {
		t.Fatalf("expected an invalid definition error, got %v", err)
	}

	if _, err := db.Create(config.CollectionConfig{Name: "events"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := db.Drop("users"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if got := db.Names(); !slices.Equal(got, []string{"events"}) {
		t.Fatalf("Names() = %v", got)
	}
	if err := db.Drop("users"); !errors.Is(err, dberrors.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestDB_Close(t *testing.T) {
	db := openDB(t, "users")
	users, _ := db.Collection("users")

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := db.Collection("users"); !errors.Is(err, dberrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := users.Add(Document{"id": 1}); !errors.Is(err, dberrors.ErrClosed) {
		t.Fatalf("expected ErrClosed from a closed collection, got %v", err)
	}
}

func TestOpen_InvalidMode(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = "staging"

	if _, err := Open(cfg, Options{}); !errors.Is(err, dberrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
