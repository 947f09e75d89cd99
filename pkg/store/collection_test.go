package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entitydb/pkg/dberrors"
	"entitydb/pkg/entity"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Team string `json:"team"`
}

func newUsers(t *testing.T) *Collection[user] {
	t.Helper()
	a, err := entity.NewAdapter(entity.Definition[user]{
		Key:     entity.Field[user]("id"),
		Indexes: entity.Indexes[user]("team"),
	})
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	c, err := NewCollection("users", a, Options{})
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCollection_Writes(t *testing.T) {
	c := newUsers(t)

	res, err := c.Add(user{ID: 2, Name: "bob", Team: "core"}, user{ID: 1, Name: "ann", Team: "core"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if res.Mutation != entity.Both || res.Seq != 1 || res.Total != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = c.Add(user{ID: 1, Name: "ann", Team: "core"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if res.Mutation != entity.None || res.Seq != 1 {
		t.Fatalf("re-adding must not commit: %+v", res)
	}

	res, err = c.UpdateOne(1, map[string]any{"team": "web"})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	if res.Mutation != entity.EntitiesOnly || res.Seq != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	web, err := c.Bucket("team", "web")
	if err != nil || len(web) != 1 || web[0].Name != "ann" {
		t.Fatalf("Bucket(web) = %v, %v", web, err)
	}

	all := c.All()
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Fatalf("All() = %v", all)
	}

	if _, err := c.Remove(2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := c.Get(2); !errors.Is(err, dberrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c.Seq() != 3 || c.Len() != 1 {
		t.Fatalf("unexpected state: seq %d, len %d", c.Seq(), c.Len())
	}
}

func TestCollection_SnapshotsAreStable(t *testing.T) {
	c := newUsers(t)
	if _, err := c.SetAll([]user{{ID: 1, Name: "ann"}, {ID: 2, Name: "bob"}}); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}

	before := c.Snapshot()
	if _, err := c.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	if before.Len() != 2 || c.Len() != 0 {
		t.Fatalf("old snapshot must keep its content: old %d, new %d", before.Len(), c.Len())
	}
	if res, _ := c.RemoveAll(); res.Mutation != entity.None {
		t.Fatalf("clearing an empty collection must not commit: %+v", res)
	}
}

func TestCollection_UpdateMissingKey(t *testing.T) {
	c := newUsers(t)

	if _, err := c.UpdateOne(42, map[string]any{"name": "x"}); !errors.Is(err, dberrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if res, err := c.Update(entity.Update[user]{Key: 42}); err != nil || res.Mutation != entity.None {
		t.Fatalf("batch update of a missing key is a no-op: %+v %v", res, err)
	}
}

func TestCollection_RemoveOneRacingWriters(t *testing.T) {
	c := newUsers(t)
	if _, err := c.Add(user{ID: 1, Name: "ann", Team: "core"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		removed  int
		notFound int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.RemoveOne(1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, dberrors.ErrNotFound):
				notFound++
			case err == nil && res.Mutation == entity.Both:
				removed++
			default:
				t.Errorf("unexpected outcome: %+v %v", res, err)
			}
		}()
	}
	wg.Wait()

	if removed != 1 || notFound != 7 {
		t.Fatalf("expected one removal and seven misses, got %d and %d", removed, notFound)
	}
	if c.Seq() != 2 || c.Len() != 0 {
		t.Fatalf("unexpected state: seq=%d len=%d", c.Seq(), c.Len())
	}
}

func TestCollection_MapOne(t *testing.T) {
	c := newUsers(t)
	if _, err := c.Set(user{ID: 1, Name: "ann"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err := c.MapOne(1, func(u user) (user, error) {
		u.Name = "Ann"
		return u, nil
	})
	if err != nil || res.Mutation != entity.EntitiesOnly {
		t.Fatalf("MapOne = %+v, %v", res, err)
	}

	boom := errors.New("boom")
	if _, err := c.MapOne(1, func(u user) (user, error) { return u, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected the mapper error, got %v", err)
	}
	if _, err := c.MapOne(7, func(u user) (user, error) { return u, nil }); !errors.Is(err, dberrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if u, _ := c.Get(1); u.Name != "Ann" {
		t.Fatalf("unexpected entity %+v", u)
	}
}

func TestCollection_InvalidKeyBecomesError(t *testing.T) {
	a := entity.MustAdapter(entity.Definition[Document]{Key: entity.Field[Document]("id")})
	c, err := NewCollection("docs", a, Options{})
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}

	_, err = c.Add(Document{"id": []int{1}})

	var invalid *entity.InvalidKeyTypeError
	if !errors.Is(err, dberrors.ErrInvalidArgument) || !errors.As(err, &invalid) {
		t.Fatalf("expected an invalid key error, got %v", err)
	}
	if c.Len() != 0 || c.Seq() != 0 {
		t.Fatal("a failed write must not commit")
	}
}

func TestCollection_Watch(t *testing.T) {
	c := newUsers(t)

	var (
		mu  sync.Mutex
		got []Change
	)
	done := make(chan struct{})
	stop := c.Watch(context.Background(), func(ch Change) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ch)
		if len(got) == 2 {
			close(done)
		}
		return nil
	})
	defer stop()

	_, _ = c.Add(user{ID: 1, Name: "ann"})
	_, _ = c.Add(user{ID: 1, Name: "ann"})
	_, _ = c.UpdateOne(1, map[string]any{"name": "Ann"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("changes were not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Op != AddOp || got[0].Seq != 1 || got[0].Mutation != entity.Both {
		t.Fatalf("unexpected first change: %+v", got[0])
	}
	if got[1].Op != UpdateOp || got[1].Seq != 2 || got[1].Collection != "users" {
		t.Fatalf("unexpected second change: %+v", got[1])
	}
	if got[0].ID == got[1].ID {
		t.Fatal("change IDs must be unique")
	}
}

func TestCollection_Closed(t *testing.T) {
	c := newUsers(t)
	_ = c.Close()

	if _, err := c.Add(user{ID: 1}); !errors.Is(err, dberrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCollection_ConcurrentWriters(t *testing.T) {
	c := newUsers(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := c.Upsert(user{ID: w*100 + i, Team: "t"}); err != nil {
					t.Errorf("Upsert failed: %v", err)
				}
				_ = c.All()
			}
		}(w)
	}
	wg.Wait()

	if c.Len() != 400 || c.Seq() != 400 {
		t.Fatalf("expected 400 entities and writes, got %d / %d", c.Len(), c.Seq())
	}
	if team, _ := c.Bucket("team", "t"); len(team) != 400 {
		t.Fatalf("expected 400 entities in the team bucket, got %d", len(team))
	}
}

func TestCollection_UnknownIndex(t *testing.T) {
	c := newUsers(t)

	if _, err := c.IndexAll("nope"); !errors.Is(err, dberrors.ErrUnknownIndex) {
		t.Fatalf("expected ErrUnknownIndex, got %v", err)
	}
	if _, err := c.IndexKeys("nope"); !errors.Is(err, dberrors.ErrUnknownIndex) {
		t.Fatalf("expected ErrUnknownIndex, got %v", err)
	}
}
