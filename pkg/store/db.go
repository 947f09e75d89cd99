package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"entitydb/pkg/config"
	"entitydb/pkg/dberrors"
	"entitydb/pkg/entity"

	"github.com/zhangyunhao116/skipmap"
)

type catalog = skipmap.FuncMap[string, *DocumentCollection]

// DB is the catalog of named document collections, ordered by name.
type DB struct {
	collections *catalog
	diag        entity.Diagnostics
	opts        Options
	closed      atomic.Bool
}

func newCatalog() *catalog {
	return skipmap.NewFunc[string, *DocumentCollection](func(a, b string) bool {
		return strings.Compare(a, b) < 0
	})
}

// Open creates the collections declared in cfg.
func Open(cfg config.Config, opts Options) (*DB, error) {
	mode, err := entity.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = cfg.Selectors.CacheSize
	}

	db := &DB{
		collections: newCatalog(),
		diag:        entity.Diagnostics{Mode: mode, Logger: slog.Default()},
		opts:        opts,
	}
	for _, cc := range cfg.Collections {
		if _, err := db.Create(cc); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	slog.Info("database opened", "collections", db.collections.Len(), "mode", mode)
	return db, nil
}

// Create adds a collection; the name must not be taken.
func (db *DB) Create(cfg config.CollectionConfig) (*DocumentCollection, error) {
	if db.closed.Load() {
		return nil, dberrors.ErrClosed
	}
	if cfg.Name == "" || strings.Contains(cfg.Name, "/") {
		return nil, fmt.Errorf("%w: collection name %q", dberrors.ErrInvalidArgument, cfg.Name)
	}

	c, err := NewDocumentCollection(cfg, db.diag, db.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, err)
	}
	if _, loaded := db.collections.LoadOrStore(cfg.Name, c); loaded {
		_ = c.Close()
		return nil, fmt.Errorf("%w: collection %s exists", dberrors.ErrInvalidArgument, cfg.Name)
	}
	return c, nil
}

func (db *DB) Collection(name string) (*DocumentCollection, error) {
	if db.closed.Load() {
		return nil, dberrors.ErrClosed
	}
	c, ok := db.collections.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dberrors.ErrUnknownCollection, name)
	}
	return c, nil
}

// Drop closes and removes a collection.
func (db *DB) Drop(name string) error {
	c, ok := db.collections.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("%w: %s", dberrors.ErrUnknownCollection, name)
	}
	return c.Close()
}

// Names returns the collection names in ascending order.
func (db *DB) Names() []string {
	names := make([]string, 0, db.collections.Len())
	db.collections.Range(func(name string, _ *DocumentCollection) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	db.collections.Range(func(name string, c *DocumentCollection) bool {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("collection %s: %w", name, err))
		}
		return true
	})
	return errors.Join(errs...)
}
