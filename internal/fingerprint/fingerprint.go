// Package fingerprint derives the deterministic cache key for a frame
// transformation. Two identical fingerprints always denote identical
// desired output, which is what makes the frame cache content-addressed.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint is the hex digest identifying a unique
// (frame content, prompt, parameters, model) combination.
type Fingerprint string

// Inputs are the values folded into a fingerprint. FrameHash must be the
// hex content hash of the raw frame bytes, not a file path: renaming or
// moving a frame never changes its fingerprint.
type Inputs struct {
	FrameHash string
	Prompt    string
	Strength  float64
	Steps     int
	Guidance  float64
	Extra     map[string]string
	Model     string
}

// HashBytes returns the hex SHA-256 of raw frame content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compute derives the fingerprint for the given inputs. The encoding is
// length-prefix free but unambiguous: each field is written with a label
// and a newline, and extra params are sorted by key.
func Compute(in Inputs) (Fingerprint, error) {
	if strings.TrimSpace(in.FrameHash) == "" {
		return "", errors.New("fingerprint: frame hash required")
	}
	if strings.TrimSpace(in.Model) == "" {
		return "", errors.New("fingerprint: model identity required")
	}

	h := sha256.New()
	writeField := func(label, value string) {
		h.Write([]byte(label))
		h.Write([]byte{'='})
		h.Write([]byte(value))
		h.Write([]byte{'\n'})
	}

	writeField("frame", in.FrameHash)
	writeField("prompt", in.Prompt)
	writeField("strength", strconv.FormatFloat(in.Strength, 'g', -1, 64))
	writeField("steps", strconv.Itoa(in.Steps))
	writeField("guidance", strconv.FormatFloat(in.Guidance, 'g', -1, 64))
	writeField("model", in.Model)

	keys := make([]string, 0, len(in.Extra))
	for key := range in.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeField("extra."+key, in.Extra[key])
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// String returns the full hex digest.
func (f Fingerprint) String() string { return string(f) }

// Short returns an abbreviated digest for log output.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Valid reports whether the fingerprint looks like a hex SHA-256 digest.
func (f Fingerprint) Valid() bool {
	if len(f) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(f))
	return err == nil
}
