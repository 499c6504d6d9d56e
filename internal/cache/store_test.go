package cache_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"vidstyle/internal/cache"
	"vidstyle/internal/fingerprint"
	"vidstyle/internal/logging"
)

func openStore(t *testing.T, staleAfter time.Duration) *cache.Store {
	t.Helper()
	store, err := cache.Open(t.TempDir(), staleAfter, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testFingerprint(t *testing.T, seed string) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Compute(fingerprint.Inputs{
		FrameHash: fingerprint.HashBytes([]byte(seed)),
		Prompt:    "test prompt",
		Model:     "sd-turbo",
	})
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

func TestClaimAbsentGranted(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "a")

	res, err := store.Claim(ctx, fp, "owner-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !res.Granted {
		t.Fatal("expected claim on absent entry to be granted")
	}

	res, err = store.Claim(ctx, fp, "owner-2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Granted {
		t.Fatal("second claim must not be granted while first is live")
	}
	if res.Existing == nil || res.Existing.OwnerToken != "owner-1" {
		t.Fatalf("expected existing claim by owner-1, got %#v", res.Existing)
	}
}

func TestPutTransitionsToReady(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "b")
	payload := []byte("processed-image-bytes")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, fp, "owner-1", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Status != cache.StatusReady {
		t.Fatalf("expected ready entry, got %#v", entry)
	}

	got, err := store.Payload(ctx, fp)
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %q", got)
	}

	// Ready entries are immutable; a repeated put is a no-op.
	if err := store.Put(ctx, fp, "owner-1", payload); err != nil {
		t.Fatalf("idempotent Put failed: %v", err)
	}

	res, err := store.Claim(ctx, fp, "owner-2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Granted {
		t.Fatal("ready entry must never be claimable")
	}
}

func TestPutRequiresOwnership(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "c")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, fp, "intruder", []byte("x")); !errors.Is(err, cache.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestFailReleasesForReclaim(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "d")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Fail(ctx, fp, "owner-1"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Status != cache.StatusFailed {
		t.Fatalf("expected failed entry, got %#v", entry)
	}

	res, err := store.Claim(ctx, fp, "owner-2")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Granted {
		t.Fatal("failed entry should be claimable by a later run")
	}
}

func TestStaleClaimTakeover(t *testing.T) {
	store := openStore(t, 20*time.Millisecond)
	ctx := context.Background()
	fp := testFingerprint(t, "e")

	if _, err := store.Claim(ctx, fp, "crashed-owner"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	res, err := store.Claim(ctx, fp, "owner-2")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Granted {
		t.Fatal("stale claim should be eligible for takeover")
	}

	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if entry.OwnerToken != "owner-2" {
		t.Fatalf("expected new owner, got %q", entry.OwnerToken)
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "f")

	const claimants = 16
	var wg sync.WaitGroup
	granted := make(chan string, claimants)
	for i := 0; i < claimants; i++ {
		owner := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Claim(ctx, fp, owner)
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if res.Granted {
				granted <- owner
			}
		}()
	}
	wg.Wait()
	close(granted)

	winners := 0
	for range granted {
		winners++
	}
	if winners != 1 {
		t.Fatalf("expected exactly one granted claim, got %d", winners)
	}
}

func TestInvalidateRemovesEntryAndPayload(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "g")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, fp, "owner-1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Invalidate(ctx, fp); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := os.Stat(entry.PayloadPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("payload file should be removed, stat err = %v", err)
	}
	got, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("entry should be absent after invalidate, got %#v", got)
	}

	// Invalidating an absent fingerprint is a no-op.
	if err := store.Invalidate(ctx, fp); err != nil {
		t.Fatalf("Invalidate of absent entry failed: %v", err)
	}
}

func TestGetDropsEntryWithMissingPayload(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "h")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, fp, "owner-1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(entry.PayloadPath); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("entry with missing payload should read as absent, got %#v", got)
	}
}

func TestIncrementAttempt(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()
	fp := testFingerprint(t, "i")

	if _, err := store.Claim(ctx, fp, "owner-1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := store.IncrementAttempt(ctx, fp, "owner-1"); err != nil {
			t.Fatalf("IncrementAttempt failed: %v", err)
		}
	}
	entry, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if entry.AttemptCount != 3 {
		t.Fatalf("AttemptCount = %d, want 3", entry.AttemptCount)
	}

	if err := store.IncrementAttempt(ctx, fp, "intruder"); !errors.Is(err, cache.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestStatsAndClear(t *testing.T) {
	store := openStore(t, time.Hour)
	ctx := context.Background()

	ready := testFingerprint(t, "j1")
	failed := testFingerprint(t, "j2")
	pending := testFingerprint(t, "j3")

	if _, err := store.Claim(ctx, ready, "o"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, ready, "o", []byte("12345")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx, failed, "o"); err != nil {
		t.Fatal(err)
	}
	if err := store.Fail(ctx, failed, "o"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx, pending, "o"); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Ready != 1 || stats.Failed != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.PayloadBytes != 5 {
		t.Fatalf("PayloadBytes = %d, want 5", stats.PayloadBytes)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("Clear removed %d, want 3", removed)
	}
}
