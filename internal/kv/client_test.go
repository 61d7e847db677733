package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewClient(rdb), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestIncrement_FirstWriteFlag(t *testing.T) {
	client, _, done := newTestClient(t)
	defer done()

	ctx := context.Background()

	count, first, err := client.Increment(ctx, "k")
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if count != 1 || !first {
		t.Fatalf("expected (1, true), got (%d, %v)", count, first)
	}

	count, first, err = client.Increment(ctx, "k")
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if count != 2 || first {
		t.Fatalf("expected (2, false), got (%d, %v)", count, first)
	}
}

func TestGet_DistinguishesAbsenceFromUnavailability(t *testing.T) {
	client, mr, done := newTestClient(t)
	defer done()

	ctx := context.Background()

	if _, found, err := client.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("missing key: expected (false, nil), got (%v, %v)", found, err)
	}

	mr.Close()

	_, _, err := client.Get(ctx, "missing")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable with store down, got %v", err)
	}
}

func TestBatch_MixedOps(t *testing.T) {
	client, mr, done := newTestClient(t)
	defer done()

	ctx := context.Background()
	if err := mr.Set("present", "42"); err != nil {
		t.Fatalf("seed key failed: %v", err)
	}

	results, err := client.Batch(ctx, []Op{
		{Kind: OpIncr, Key: "counter"},
		{Kind: OpGet, Key: "present"},
		{Kind: OpGet, Key: "absent"},
		{Kind: OpExpire, Key: "present", TTL: time.Minute},
		{Kind: OpTTL, Key: "present"},
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if results[0].Count != 1 {
		t.Fatalf("incr: expected count 1, got %d", results[0].Count)
	}
	if !results[1].Found || results[1].Value != "42" {
		t.Fatalf("get present: expected (42, found), got (%q, %v)", results[1].Value, results[1].Found)
	}
	if results[2].Found {
		t.Fatal("get absent: expected not found")
	}
	if !results[3].Found {
		t.Fatal("expire: expected applied")
	}
	if results[4].TTL <= 0 || results[4].TTL > time.Minute {
		t.Fatalf("ttl: expected (0, 1m], got %v", results[4].TTL)
	}
}

func TestBatch_NotAtomicAcrossOps(t *testing.T) {
	// A batch is pipelined, not transactional: each op applies
	// individually. Interleaving another client between two batches can
	// observe (and modify) state mid-sequence. This also covers the
	// documented increment-then-expire window: a key can exist,
	// incremented, before its TTL is assigned.
	client, mr, done := newTestClient(t)
	defer done()

	ctx := context.Background()

	if _, _, err := client.Increment(ctx, "window"); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	// Between the increment and the expire, the key has no TTL.
	if mr.TTL("window") != 0 {
		t.Fatalf("expected no TTL before expire, got %v", mr.TTL("window"))
	}

	if err := client.Expire(ctx, "window", time.Minute); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if mr.TTL("window") != time.Minute {
		t.Fatalf("expected 1m TTL after expire, got %v", mr.TTL("window"))
	}
}

func TestSetOps(t *testing.T) {
	client, _, done := newTestClient(t)
	defer done()

	ctx := context.Background()

	added, err := client.SAdd(ctx, "s", "a")
	if err != nil || !added {
		t.Fatalf("first sadd: expected (true, nil), got (%v, %v)", added, err)
	}
	added, err = client.SAdd(ctx, "s", "a")
	if err != nil || added {
		t.Fatalf("duplicate sadd: expected (false, nil), got (%v, %v)", added, err)
	}

	if _, err := client.SAdd(ctx, "s", "b"); err != nil {
		t.Fatalf("sadd failed: %v", err)
	}

	card, err := client.SCard(ctx, "s")
	if err != nil || card != 2 {
		t.Fatalf("scard: expected 2, got (%d, %v)", card, err)
	}

	if err := client.SRem(ctx, "s", "a"); err != nil {
		t.Fatalf("srem failed: %v", err)
	}

	members, err := client.SMembers(ctx, "s")
	if err != nil || len(members) != 1 || members[0] != "b" {
		t.Fatalf("smembers: expected [b], got (%v, %v)", members, err)
	}
}
