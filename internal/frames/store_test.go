package frames_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidstyle/internal/frames"
)

func writeFrames(t *testing.T, dir string, indices ...int) {
	t.Helper()
	for _, index := range indices {
		if err := frames.WriteFrame(dir, index, []byte("frame-"+frames.FrameName(index))); err != nil {
			t.Fatalf("WriteFrame(%d) failed: %v", index, err)
		}
	}
}

func TestOpenScansAndOrders(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 2, 0, 1)

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if store.Count() != 3 {
		t.Fatalf("Count = %d, want 3", store.Count())
	}
	indices := store.Indices()
	for i, want := range []int{0, 1, 2} {
		if indices[i] != want {
			t.Fatalf("Indices = %v, want sorted [0 1 2]", indices)
		}
	}
	if err := store.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestOpenIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("Count = %d, want 1", store.Count())
	}
}

func TestValidateNamesMissingIndices(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0, 1, 4)

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = store.Validate()
	if err == nil {
		t.Fatal("expected validation error for gap")
	}
	if !strings.Contains(err.Error(), "2") || !strings.Contains(err.Error(), "3") {
		t.Fatalf("error should name missing indices 2 and 3: %v", err)
	}
}

func TestContentHashStable(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0)

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	first, err := store.ContentHash(0)
	if err != nil {
		t.Fatalf("ContentHash returned error: %v", err)
	}
	second, err := store.ContentHash(0)
	if err != nil {
		t.Fatal(err)
	}
	if first != second || len(first) != 64 {
		t.Fatalf("unstable or malformed hash: %q vs %q", first, second)
	}
}

func TestReadMissingFrame(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0)

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read(9); err == nil {
		t.Fatal("expected error for missing frame")
	}
}
