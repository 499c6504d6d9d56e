package cache

import (
	"context"
	"testing"
	"time"

	"vidstyle/internal/fingerprint"
	"vidstyle/internal/logging"
)

func TestTimeFormatOrdersAsStrings(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	offsets := []time.Duration{
		0,
		time.Nanosecond,
		500 * time.Millisecond,
		time.Second,
		time.Second + time.Nanosecond,
	}
	for i := 1; i < len(offsets); i++ {
		earlier := base.Add(offsets[i-1]).Format(timeFormat)
		later := base.Add(offsets[i]).Format(timeFormat)
		if !(earlier < later) {
			t.Errorf("%q should sort before %q", earlier, later)
		}
	}
	for _, offset := range offsets {
		formatted := base.Add(offset).Format(timeFormat)
		parsed, err := time.Parse(time.RFC3339Nano, formatted)
		if err != nil {
			t.Fatalf("parse %q: %v", formatted, err)
		}
		if !parsed.Equal(base.Add(offset)) {
			t.Errorf("round trip changed %q to %v", formatted, parsed)
		}
	}
}

func TestClaimStaleAcrossSecondBoundary(t *testing.T) {
	store, err := Open(t.TempDir(), time.Second, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	fp := fingerprint.Fingerprint(fingerprint.HashBytes([]byte("boundary-frame")))
	ctx := context.Background()

	// Claim lands exactly on a whole second; the takeover attempt's
	// staleness cutoff falls mid-second, so the comparison crosses the
	// fractional-digit boundary.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	claim, err := store.Claim(ctx, fp, "run-a/claim-a")
	if err != nil {
		t.Fatal(err)
	}
	if !claim.Granted {
		t.Fatal("initial claim should be granted")
	}

	store.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	takeover, err := store.Claim(ctx, fp, "run-b/claim-b")
	if err != nil {
		t.Fatal(err)
	}
	if !takeover.Granted {
		t.Fatal("claim older than the stale timeout should be granted")
	}
}
