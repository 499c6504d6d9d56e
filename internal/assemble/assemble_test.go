package assemble_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidstyle/internal/assemble"
	"vidstyle/internal/cache"
	"vidstyle/internal/dispatch"
	"vidstyle/internal/fingerprint"
	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
)

type fixture struct {
	store  *cache.Store
	frames *frames.Store
	output string
}

func newFixture(t *testing.T, frameCount int) *fixture {
	t.Helper()
	store, err := cache.Open(t.TempDir(), time.Hour, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	framesDir := t.TempDir()
	for i := 0; i < frameCount; i++ {
		if err := frames.WriteFrame(framesDir, i, []byte(fmt.Sprintf("original-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	frameStore, err := frames.Open(framesDir)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{store: store, frames: frameStore, output: t.TempDir()}
}

func (f *fixture) stylize(t *testing.T, index int) dispatch.Result {
	t.Helper()
	ctx := context.Background()
	hash, err := f.frames.ContentHash(index)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := fingerprint.Compute(fingerprint.Inputs{FrameHash: hash, Prompt: "p", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Claim(ctx, fp, "owner"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Put(ctx, fp, "owner", []byte(fmt.Sprintf("styled-%d", index))); err != nil {
		t.Fatal(err)
	}
	return dispatch.Result{
		FrameIndex:  index,
		SceneName:   "scene000",
		Fingerprint: fp,
		Outcome:     dispatch.OutcomeFresh,
	}
}

func readOutput(t *testing.T, dir string, index int) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, frames.FrameName(index)))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAssembleAllStylized(t *testing.T) {
	f := newFixture(t, 3)
	results := []dispatch.Result{f.stylize(t, 2), f.stylize(t, 0), f.stylize(t, 1)}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackOriginal, logging.NewNop())
	manifest, err := assembler.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if manifest.Total != 3 || manifest.Stylized != 3 || manifest.Fallback != 0 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	for i := 0; i < 3; i++ {
		if manifest.Entries[i].Index != i {
			t.Fatalf("manifest out of order at %d: %+v", i, manifest.Entries[i])
		}
		if got := readOutput(t, f.output, i); got != fmt.Sprintf("styled-%d", i) {
			t.Fatalf("frame %d content = %q", i, got)
		}
	}
}

func TestAssembleFallsBackToOriginal(t *testing.T) {
	f := newFixture(t, 3)
	results := []dispatch.Result{
		f.stylize(t, 0),
		{FrameIndex: 1, SceneName: "scene000", Outcome: dispatch.OutcomeFailed, Err: fmt.Errorf("endpoint down")},
		f.stylize(t, 2),
	}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackOriginal, logging.NewNop())
	manifest, err := assembler.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if manifest.Stylized != 2 || manifest.Fallback != 1 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	if got := readOutput(t, f.output, 1); got != "original-1" {
		t.Fatalf("fallback frame content = %q", got)
	}
	if manifest.Entries[1].Source != "original" {
		t.Fatalf("entry source = %q", manifest.Entries[1].Source)
	}
}

func TestAssembleAbortPolicy(t *testing.T) {
	f := newFixture(t, 2)
	results := []dispatch.Result{
		f.stylize(t, 0),
		{FrameIndex: 1, SceneName: "scene000", Outcome: dispatch.OutcomeFailed},
	}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackAbort, logging.NewNop())
	if _, err := assembler.Assemble(context.Background(), results); err == nil {
		t.Fatal("expected abort error")
	}
	// Abort happens before any frame is written.
	if _, err := os.Stat(filepath.Join(f.output, frames.FrameName(0))); !os.IsNotExist(err) {
		t.Fatalf("abort should not write frames, stat err = %v", err)
	}
}

func TestAssembleRejectsIncompleteCoverage(t *testing.T) {
	f := newFixture(t, 3)
	results := []dispatch.Result{f.stylize(t, 0), f.stylize(t, 2)}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackOriginal, logging.NewNop())
	if _, err := assembler.Assemble(context.Background(), results); err == nil {
		t.Fatal("expected coverage error")
	}
}

func TestAssembleInvalidatedPayloadFallsBack(t *testing.T) {
	f := newFixture(t, 1)
	result := f.stylize(t, 0)
	if err := f.store.Invalidate(context.Background(), result.Fingerprint); err != nil {
		t.Fatal(err)
	}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackOriginal, logging.NewNop())
	manifest, err := assembler.Assemble(context.Background(), []dispatch.Result{result})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if manifest.Fallback != 1 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	f := newFixture(t, 2)
	results := []dispatch.Result{f.stylize(t, 0), f.stylize(t, 1)}

	assembler := assemble.New(f.store, f.frames, f.output, assemble.FallbackOriginal, logging.NewNop())
	written, err := assembler.Assemble(context.Background(), results)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := assemble.LoadManifest(f.output)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if loaded.Total != written.Total || len(loaded.Entries) != len(written.Entries) {
		t.Fatalf("manifest round trip mismatch: %+v vs %+v", loaded, written)
	}
}
