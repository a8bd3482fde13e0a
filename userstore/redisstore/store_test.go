package redisstore

import (
	"context"
	"errors"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, "test"), mr
}

func TestPutThenLookup(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	in := goSession.User{Username: "alice", Nickname: "Alice", Role: "user", PasswordHash: "$argon2id$x"}
	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("test:user:alice") {
		t.Fatal("expected hash at test:user:alice")
	}

	got, err := store.LookupByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	in.ID = 1
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("unexpected user (-want +got):\n%s", diff)
	}
}

func TestExplicitIDIsKept(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, goSession.User{ID: 42, Username: "root", Role: "admin"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.LookupByUsername(ctx, "root")
	if err != nil || got.ID != 42 {
		t.Fatalf("expected id 42, got %+v err=%v", got, err)
	}
}

func TestRePutKeepsExistingID(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_ = store.Put(ctx, goSession.User{Username: "bob", Role: "user"})
	if err := store.Put(ctx, goSession.User{Username: "root", Role: "admin", PasswordHash: "old"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, goSession.User{Username: "root", Role: "admin", PasswordHash: "new"}); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	got, err := store.LookupByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != 2 || got.PasswordHash != "new" {
		t.Fatalf("expected id 2 with the new hash, got %+v", got)
	}
	if err := store.Put(ctx, goSession.User{Username: "carol", Role: "user"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if carol, _ := store.LookupByUsername(ctx, "carol"); carol.ID != 3 {
		t.Fatalf("expected the sequence to be untouched by the re-put, got id %d", carol.ID)
	}
}

func TestLookupMissingUser(t *testing.T) {
	store, _ := newRedisStoreTest(t)

	_, err := store.LookupByUsername(context.Background(), "ghost")
	if !errors.Is(err, goSession.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDeleteRemovesUser(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	_ = store.Put(ctx, goSession.User{Username: "alice"})

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.LookupByUsername(ctx, "alice"); !errors.Is(err, goSession.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCorruptIDIsNotUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	mr.HSet("test:user:alice", "id", "not-a-number")

	_, err := store.LookupByUsername(context.Background(), "alice")
	if err == nil {
		t.Fatal("expected error for corrupt record")
	}
	if errors.Is(err, goSession.ErrStoreUnavailable) || errors.Is(err, goSession.ErrUserNotFound) {
		t.Fatalf("corrupt record must not be classified as outage or unknown user: %v", err)
	}
}

func TestServerDownIsUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()
	_ = store.Put(ctx, goSession.User{Username: "alice"})
	mr.Close()

	if _, err := store.LookupByUsername(ctx, "alice"); !errors.Is(err, goSession.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, goSession.ErrStoreUnavailable) {
		t.Fatalf("expected ping to fail, got %v", err)
	}
}
