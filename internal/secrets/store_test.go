package secrets

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testKind = Kind{
	Prefix: "signup",
	Fields: []string{"email", "salt", "hash"},
	TTL:    time.Minute,
}

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestCreateThenLoadReturnsSameFields(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	fields := map[string]string{
		"email": "a@b.com",
		"salt":  "$argon2id$abc",
		"hash":  "digest",
	}
	secret, err := store.Create(ctx, testKind, fields)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if secret == "" {
		t.Fatal("empty secret")
	}

	loaded, ok, err := store.Load(ctx, testKind, secret)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("record should be present immediately after create")
	}
	for name, want := range fields {
		if loaded[name] != want {
			t.Errorf("field %q = %q, want %q", name, loaded[name], want)
		}
	}
}

func TestCreateRejectsMissingField(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()

	_, err := store.Create(context.Background(), testKind, map[string]string{"email": "a@b.com"})
	if err == nil {
		t.Fatal("expected error for missing configured field")
	}
}

func TestLoadAfterExpiryReturnsAbsent(t *testing.T) {
	store, mr, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	secret, err := store.Create(ctx, testKind, map[string]string{
		"email": "a@b.com", "salt": "s", "hash": "h",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(testKind.TTL + time.Second)

	_, ok, err := store.Load(ctx, testKind, secret)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expired record should be absent")
	}
}

func TestLoadUnknownSecretReturnsAbsent(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()

	_, ok, err := store.Load(context.Background(), testKind, "never-existed")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("unknown secret should be absent")
	}
}

func TestLoadTreatsPartialRecordAsAbsent(t *testing.T) {
	store, mr, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	// A record that lost one of its configured fields must read as absent.
	mr.HSet("signup:partial", "email", "a@b.com", "salt", "s")

	_, ok, err := store.Load(ctx, testKind, "partial")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("partial record should be absent")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	secret, err := store.Create(ctx, testKind, map[string]string{
		"email": "a@b.com", "salt": "s", "hash": "h",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Delete(ctx, testKind, secret); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, testKind, secret); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	_, ok, err := store.Load(ctx, testKind, secret)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("deleted record should be absent")
	}
}
