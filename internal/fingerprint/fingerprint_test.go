package fingerprint_test

import (
	"testing"

	"vidstyle/internal/fingerprint"
)

func baseInputs() fingerprint.Inputs {
	return fingerprint.Inputs{
		FrameHash: fingerprint.HashBytes([]byte("frame-bytes")),
		Prompt:    "sunset over water",
		Strength:  0.5,
		Steps:     2,
		Model:     "sd-turbo",
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := fingerprint.Compute(baseInputs())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	b, err := fingerprint.Compute(baseInputs())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if a != b {
		t.Fatalf("fingerprints differ for identical inputs: %s vs %s", a, b)
	}
	if !a.Valid() {
		t.Fatalf("fingerprint not a valid digest: %s", a)
	}
}

func TestComputeSensitivity(t *testing.T) {
	base, err := fingerprint.Compute(baseInputs())
	if err != nil {
		t.Fatal(err)
	}

	mutations := map[string]func(*fingerprint.Inputs){
		"frame hash": func(in *fingerprint.Inputs) { in.FrameHash = fingerprint.HashBytes([]byte("other")) },
		"prompt":     func(in *fingerprint.Inputs) { in.Prompt = "dawn over water" },
		"strength":   func(in *fingerprint.Inputs) { in.Strength = 0.6 },
		"steps":      func(in *fingerprint.Inputs) { in.Steps = 4 },
		"guidance":   func(in *fingerprint.Inputs) { in.Guidance = 1.0 },
		"model":      func(in *fingerprint.Inputs) { in.Model = "sdxl" },
		"extra":      func(in *fingerprint.Inputs) { in.Extra = map[string]string{"seed": "7"} },
	}

	for name, mutate := range mutations {
		in := baseInputs()
		mutate(&in)
		got, err := fingerprint.Compute(in)
		if err != nil {
			t.Fatalf("%s: Compute returned error: %v", name, err)
		}
		if got == base {
			t.Fatalf("%s: mutation did not change fingerprint", name)
		}
	}
}

func TestComputeExtraParamOrderIrrelevant(t *testing.T) {
	a := baseInputs()
	a.Extra = map[string]string{"seed": "7", "scheduler": "ddim"}
	b := baseInputs()
	b.Extra = map[string]string{"scheduler": "ddim", "seed": "7"}

	fa, err := fingerprint.Compute(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := fingerprint.Compute(b)
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Fatal("extra param map order changed the fingerprint")
	}
}

func TestComputeRequiresFrameHashAndModel(t *testing.T) {
	in := baseInputs()
	in.FrameHash = " "
	if _, err := fingerprint.Compute(in); err == nil {
		t.Fatal("expected error for missing frame hash")
	}

	in = baseInputs()
	in.Model = ""
	if _, err := fingerprint.Compute(in); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestShort(t *testing.T) {
	fp, err := fingerprint.Compute(baseInputs())
	if err != nil {
		t.Fatal(err)
	}
	if len(fp.Short()) != 12 {
		t.Fatalf("Short() = %q, want 12 chars", fp.Short())
	}
}
