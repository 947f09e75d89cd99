package store

import (
	"fmt"
	"log/slog"
	"strconv"

	"entitydb/pkg/config"
	"entitydb/pkg/entity"
)

// Document is a decoded JSON object.
type Document = map[string]any

// DocumentCollection is a collection of JSON documents whose keys and
// indexes are declared by configuration.
type DocumentCollection struct {
	*Collection[Document]
}

// DocumentDefinition builds the adapter definition of a configured
// collection.
func DocumentDefinition(cfg config.CollectionConfig, diag entity.Diagnostics) entity.Definition[Document] {
	def := entity.Definition[Document]{Diagnostics: diag}
	if path := cfg.Path(); path != nil {
		def.Key = selectorFor(path)
	}
	if cfg.SharedKeys {
		def.Keys = entity.SharedKeys
	}
	for _, ix := range cfg.Indexes {
		def.Indexes = append(def.Indexes, entity.IndexDefinition[Document]{
			Name:       ix.Name,
			Selector:   selectorFor(ix.Path()),
			MultiEntry: ix.MultiEntry,
			Unique:     ix.Unique,
		})
	}
	return def
}

func selectorFor(path []string) entity.Selector[Document] {
	if len(path) == 1 {
		return entity.Field[Document](path[0])
	}
	return entity.Path[Document](path...)
}

func NewDocumentCollection(cfg config.CollectionConfig, diag entity.Diagnostics, opts Options) (*DocumentCollection, error) {
	adapter, err := entity.NewAdapter(DocumentDefinition(cfg, diag))
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", cfg.Name, err)
	}
	c, err := NewCollection(cfg.Name, adapter, opts)
	if err != nil {
		return nil, err
	}
	return &DocumentCollection{Collection: c}, nil
}

// ResolveKey maps a key received as text (e.g. a URL segment) to the stored
// key: a number when it parses as one and the collection holds that number,
// the text otherwise.
func (c *DocumentCollection) ResolveKey(raw string) entity.Key {
	s := c.Snapshot()
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if k := entity.NormalizeKey(n); s.Has(k) {
			return k
		}
	}
	return raw
}

// ResolveIndexKey is ResolveKey for the keys of an index.
func (c *DocumentCollection) ResolveIndexKey(index, raw string) entity.Key {
	ix := c.Snapshot().Index(index)
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if k := entity.NormalizeKey(n); ix.Bucket(k) != nil {
			return k
		}
	}
	return raw
}

// Patch applies a JSON Patch to the document stored under key.
func (c *DocumentCollection) Patch(key entity.Key, patch []byte) (Result, error) {
	ops, err := DecodePatch(patch)
	if err != nil {
		return Result{}, err
	}
	return c.MapOne(key, func(doc Document) (Document, error) {
		return PatchDocument(doc, ops)
	})
}

// RemoveMatching removes the documents matching a predicate expression.
// Nothing is removed when the predicate fails on any document.
func (c *DocumentCollection) RemoveMatching(src string) (Result, error) {
	pred, err := CompilePredicate(src)
	if err != nil {
		return Result{}, err
	}
	return c.apply(RemoveWhereOp, func(s *entity.Snapshot[Document]) (*entity.Snapshot[Document], error) {
		var keys []entity.Key
		for _, k := range s.Keys() {
			doc, _ := s.Entity(k)
			ok, err := pred.Match(doc)
			if err != nil {
				return nil, err
			}
			if ok {
				keys = append(keys, k)
			}
		}
		return c.adapter.RemoveMany(keys, s), nil
	})
}

// Filter returns the documents matching a predicate expression, in primary
// key order.
func (c *DocumentCollection) Filter(src string) ([]Document, error) {
	pred, err := CompilePredicate(src)
	if err != nil {
		return nil, err
	}

	var out []Document
	for _, doc := range c.All() {
		ok, err := pred.Match(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	slog.Debug("filtered documents", "collection", c.Name(), "predicate", src, "matched", len(out))
	return out, nil
}
