package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"entitydb/pkg/clock"
	"entitydb/pkg/dberrors"
	"entitydb/pkg/entity"
	"entitydb/pkg/listener"
	"entitydb/pkg/metrics"
	"entitydb/pkg/types"

	"github.com/google/uuid"
)

const (
	defaultCacheSize  = 16
	defaultFeedBuffer = 64
)

type iClock interface {
	Val() uint64
	Next() uint64
}

// Options tunes a collection; zero values select the defaults.
type Options struct {
	Metrics    metrics.Collector
	CacheSize  int
	FeedBuffer int
}

// Collection owns the current snapshot of one logical store. Writes are
// serialized; reads load the current snapshot without locking.
type Collection[T any] struct {
	name      string
	adapter   *entity.Adapter[T]
	seqN      iClock
	metrics   metrics.Collector
	selectors *entity.Selectors[T]
	feedSize  int

	mu     sync.Mutex
	snap   atomic.Pointer[entity.Snapshot[T]]
	closed bool

	watchMu  sync.Mutex
	watchers map[uuid.UUID]*watcher
}

type watcher struct {
	ch chan Change
	l  *listener.Listener[Change]
}

func NewCollection[T any](name string, adapter *entity.Adapter[T], opts Options) (*Collection[T], error) {
	if name == "" || adapter == nil {
		return nil, fmt.Errorf("%w: collection needs a name and an adapter", dberrors.ErrInvalidArgument)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.FeedBuffer <= 0 {
		opts.FeedBuffer = defaultFeedBuffer
	}

	selectors, err := entity.NewSelectors[T](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create selectors: %w", err)
	}

	c := &Collection[T]{
		name:      name,
		adapter:   adapter,
		seqN:      clock.NewAtomic(0),
		metrics:   opts.Metrics,
		selectors: selectors,
		feedSize:  opts.FeedBuffer,
		watchers:  map[uuid.UUID]*watcher{},
	}
	c.snap.Store(adapter.InitialState())
	return c, nil
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) Adapter() *entity.Adapter[T] {
	return c.adapter
}

// Snapshot returns the current snapshot. It stays valid, and unchanged,
// after later writes.
func (c *Collection[T]) Snapshot() *entity.Snapshot[T] {
	return c.snap.Load()
}

// Seq returns the sequence number of the last committed write.
func (c *Collection[T]) Seq() types.SequenceNumber {
	return types.SequenceNumber(c.seqN.Val())
}

func (c *Collection[T]) Len() int {
	return c.Snapshot().Len()
}

func (c *Collection[T]) Get(key entity.Key) (T, error) {
	e, ok := c.Snapshot().Entity(key)
	if !ok {
		return e, fmt.Errorf("%w: %s/%v", dberrors.ErrNotFound, c.name, key)
	}
	return e, nil
}

// All returns the entities in primary key order.
func (c *Collection[T]) All() []T {
	return c.selectors.All(c.Snapshot())
}

// IndexKeys returns the distinct keys of an index in index order.
func (c *Collection[T]) IndexKeys(index string) ([]entity.Key, error) {
	ix := c.Snapshot().Index(index)
	if ix == nil {
		return nil, c.unknownIndex(index)
	}
	return ix.Keys(), nil
}

// IndexAll returns the entities of an index in index key order.
func (c *Collection[T]) IndexAll(index string) ([]T, error) {
	s := c.Snapshot()
	if s.Index(index) == nil {
		return nil, c.unknownIndex(index)
	}
	return c.selectors.IndexAll(index, s), nil
}

// Bucket returns the entities whose index key is value.
func (c *Collection[T]) Bucket(index string, value any) ([]T, error) {
	s := c.Snapshot()
	if s.Index(index) == nil {
		return nil, c.unknownIndex(index)
	}
	return entity.SelectBucket(s, index, value), nil
}

func (c *Collection[T]) unknownIndex(index string) error {
	return fmt.Errorf("%w: %s/%s", dberrors.ErrUnknownIndex, c.name, index)
}

func (c *Collection[T]) Add(entities ...T) (Result, error) {
	return c.write(AddOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.AddMany(entities, s)
	})
}

func (c *Collection[T]) Set(entities ...T) (Result, error) {
	return c.write(SetOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.SetMany(entities, s)
	})
}

// SetAll replaces the whole content of the collection.
func (c *Collection[T]) SetAll(entities []T) (Result, error) {
	return c.write(SetAllOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.SetAll(entities, s)
	})
}

func (c *Collection[T]) Upsert(entities ...T) (Result, error) {
	return c.write(UpsertOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.UpsertMany(entities, s)
	})
}

// Update applies partial updates. Updates of absent keys are ignored.
func (c *Collection[T]) Update(updates ...entity.Update[T]) (Result, error) {
	return c.write(UpdateOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.UpdateMany(updates, s)
	})
}

// UpdateOne is Update of a single key that fails with ErrNotFound when the
// key is absent.
func (c *Collection[T]) UpdateOne(key entity.Key, changes map[string]any) (Result, error) {
	return c.apply(UpdateOp, func(s *entity.Snapshot[T]) (*entity.Snapshot[T], error) {
		if !s.Has(key) {
			return nil, fmt.Errorf("%w: %s/%v", dberrors.ErrNotFound, c.name, key)
		}
		return c.adapter.UpdateOne(entity.Update[T]{Key: key, Changes: changes}, s), nil
	})
}

func (c *Collection[T]) Remove(keys ...entity.Key) (Result, error) {
	return c.write(RemoveOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.RemoveMany(keys, s)
	})
}

// RemoveOne removes a single key and fails with ErrNotFound when the key is
// absent.
func (c *Collection[T]) RemoveOne(key entity.Key) (Result, error) {
	return c.apply(RemoveOp, func(s *entity.Snapshot[T]) (*entity.Snapshot[T], error) {
		if !s.Has(key) {
			return nil, fmt.Errorf("%w: %s/%v", dberrors.ErrNotFound, c.name, key)
		}
		return c.adapter.RemoveOne(key, s), nil
	})
}

func (c *Collection[T]) RemoveWhere(pred func(T) bool) (Result, error) {
	return c.write(RemoveWhereOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.RemoveWhere(pred, s)
	})
}

func (c *Collection[T]) RemoveAll() (Result, error) {
	return c.write(RemoveAllOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		if s.Len() == 0 {
			return s
		}
		return c.adapter.RemoveAll(s)
	})
}

func (c *Collection[T]) Map(fn func(T) T) (Result, error) {
	return c.write(MapOp, func(s *entity.Snapshot[T]) *entity.Snapshot[T] {
		return c.adapter.Map(fn, s)
	})
}

// MapOne replaces the entity stored under key with fn's result. It fails
// with ErrNotFound when the key is absent.
func (c *Collection[T]) MapOne(key entity.Key, fn func(T) (T, error)) (Result, error) {
	return c.apply(MapOneOp, func(s *entity.Snapshot[T]) (*entity.Snapshot[T], error) {
		cur, ok := s.Entity(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%v", dberrors.ErrNotFound, c.name, key)
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		return c.adapter.MapOne(entity.KeyedMap[T]{Key: key, Map: func(T) T { return next }}, s), nil
	})
}

func (c *Collection[T]) write(op Operation, fn func(*entity.Snapshot[T]) *entity.Snapshot[T]) (Result, error) {
	return c.apply(op, func(s *entity.Snapshot[T]) (*entity.Snapshot[T], error) {
		return fn(s), nil
	})
}

// apply runs one transform against the current snapshot and commits its
// result. A transform that returns its input commits nothing.
func (c *Collection[T]) apply(op Operation, fn func(*entity.Snapshot[T]) (*entity.Snapshot[T], error)) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result{}, dberrors.ErrClosed
	}

	start := time.Now()
	labels := map[string]string{"collection": c.name, "op": op.String()}

	prev := c.snap.Load()
	next, err := guard(func() (*entity.Snapshot[T], error) { return fn(prev) })
	if err != nil {
		c.metrics.IncCounter("write_errors_total", labels, 1)
		return Result{}, err
	}

	res := Result{
		Mutation: entity.Classify(prev, next),
		Seq:      types.SequenceNumber(c.seqN.Val()),
		Total:    next.Len(),
	}
	if res.Mutation != entity.None {
		c.snap.Store(next)
		res.Seq = types.SequenceNumber(c.seqN.Next())
		c.publish(Change{
			ID:         uuid.New(),
			Collection: c.name,
			Op:         op,
			Mutation:   res.Mutation,
			Seq:        res.Seq,
			Total:      res.Total,
		})
	}

	c.metrics.IncCounter("writes_total", map[string]string{
		"collection": c.name, "op": op.String(), "mutation": res.Mutation.String(),
	}, 1)
	c.metrics.ObserveHistogram("write_duration_seconds", labels, time.Since(start).Seconds())
	c.metrics.SetGauge("entities", map[string]string{"collection": c.name}, float64(res.Total))

	return res, nil
}

// Watch calls handler for every committed change until the returned stop
// function is called or ctx is done. Changes are buffered per watcher; when
// the buffer is full new changes are dropped for that watcher.
func (c *Collection[T]) Watch(ctx context.Context, handler func(Change) error) (stop func()) {
	w := &watcher{ch: make(chan Change, c.feedSize)}
	w.l = listener.New(w.ch, handler)
	id := uuid.New()

	c.watchMu.Lock()
	c.watchers[id] = w
	c.watchMu.Unlock()

	w.l.Start(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.watchMu.Lock()
			delete(c.watchers, id)
			c.watchMu.Unlock()
			w.l.Stop()
		})
	}
}

func (c *Collection[T]) publish(ch Change) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	for _, w := range c.watchers {
		select {
		case w.ch <- ch:
		default:
			slog.Warn("change feed full, dropping change",
				"collection", c.name,
				"seq", ch.Seq,
			)
			c.metrics.IncCounter("changes_dropped_total", map[string]string{"collection": c.name}, 1)
		}
	}
}

// Close stops every watcher and rejects later writes.
func (c *Collection[T]) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.watchMu.Lock()
	watchers := c.watchers
	c.watchers = map[uuid.UUID]*watcher{}
	c.watchMu.Unlock()

	for _, w := range watchers {
		w.l.Stop()
	}
	c.selectors.Purge()
	return nil
}
