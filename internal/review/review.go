package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sort"

	"vidstyle/internal/cache"
	"vidstyle/internal/fingerprint"
	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/schedule"
)

// MarkSet is the persistent set of frames marked for recomputation.
// The file stores frame file names, so marks survive renumbering of
// anything except the frames themselves.
type MarkSet struct {
	path  string
	names map[string]struct{}
}

// LoadMarks reads a mark file, treating a missing file as an empty set.
func LoadMarks(path string) (*MarkSet, error) {
	set := &MarkSet{path: path, names: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("review: read marks: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("review: parse marks %s: %w", path, err)
	}
	for _, name := range names {
		set.names[name] = struct{}{}
	}
	return set, nil
}

// Save writes the mark set back to its file.
func (m *MarkSet) Save() error {
	names := make([]string, 0, len(m.names))
	for name := range m.names {
		names = append(names, name)
	}
	sort.Strings(names)
	data, err := json.MarshalIndent(names, "", "    ")
	if err != nil {
		return fmt.Errorf("review: encode marks: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("review: write marks: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("review: write marks: %w", err)
	}
	return nil
}

// Mark adds a frame index to the set.
func (m *MarkSet) Mark(index int) {
	m.names[frames.FrameName(index)] = struct{}{}
}

// Unmark removes a frame index, reporting whether it was marked.
func (m *MarkSet) Unmark(index int) bool {
	name := frames.FrameName(index)
	_, ok := m.names[name]
	delete(m.names, name)
	return ok
}

// IsMarked reports whether a frame index is in the set.
func (m *MarkSet) IsMarked(index int) bool {
	_, ok := m.names[frames.FrameName(index)]
	return ok
}

// Len returns the number of marked frames.
func (m *MarkSet) Len() int { return len(m.names) }

// Indices returns the marked frame indices in order. Names that do not
// parse as frame files are skipped.
func (m *MarkSet) Indices() []int {
	indices := make([]int, 0, len(m.names))
	for name := range m.names {
		var index int
		if _, err := fmt.Sscanf(name, "frame_%d.png", &index); err == nil {
			indices = append(indices, index)
		}
	}
	sort.Ints(indices)
	return indices
}

// AutoFlag scans a processed frame sequence for frames whose mean
// absolute pixel delta from both neighbors exceeds threshold (on a
// 0-255 scale). Those outliers are usually frames the model rendered
// inconsistently with the rest of their scene.
func AutoFlag(ctx context.Context, store *frames.Store, threshold float64, logger *slog.Logger) ([]int, error) {
	log := logging.NewComponentLogger(logger, "review")
	indices := store.Indices()
	if len(indices) < 2 {
		return nil, nil
	}

	deltas := make([]float64, len(indices)-1)
	var prev image.Image
	for i, index := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Read(index)
		if err != nil {
			return nil, fmt.Errorf("review: %w", err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("review: decode frame %d: %w", index, err)
		}
		if prev != nil {
			deltas[i-1] = meanAbsDelta(prev, img)
		}
		prev = img
	}

	var flagged []int
	for i, index := range indices {
		before, after := -1.0, -1.0
		if i > 0 {
			before = deltas[i-1]
		}
		if i < len(deltas) {
			after = deltas[i]
		}
		// Interior frames must spike against both neighbors; edge
		// frames only have one to compare against.
		switch {
		case before >= 0 && after >= 0:
			if before > threshold && after > threshold {
				flagged = append(flagged, index)
			}
		case before >= 0:
			if before > threshold {
				flagged = append(flagged, index)
			}
		case after >= 0:
			if after > threshold {
				flagged = append(flagged, index)
			}
		}
	}
	log.InfoContext(ctx, "auto-flag scan complete",
		logging.Int("frames", len(indices)),
		logging.Int("flagged", len(flagged)))
	return flagged, nil
}

// meanAbsDelta is the mean absolute per-channel difference between two
// images on a 0-255 scale. Differently sized images are maximally
// different.
func meanAbsDelta(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 255
	}
	var sum float64
	var samples int
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			sum += absDiff(ar, br) + absDiff(ag, bg) + absDiff(abl, bbl)
			samples += 3
		}
	}
	if samples == 0 {
		return 0
	}
	return sum / float64(samples) / 257.0
}

func absDiff(a, b uint32) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

// Fingerprinter resolves the current cache fingerprint of a frame.
type Fingerprinter interface {
	Fingerprint(index int, scene schedule.Scene) (fingerprint.Fingerprint, error)
}

// Invalidate removes the cache entries behind the given frame indices
// under the current schedule, so the next run recomputes them. Returns
// the number of entries invalidated; absent entries count as done.
func Invalidate(ctx context.Context, store *cache.Store, resolver *schedule.Resolver, fper Fingerprinter, indices []int, logger *slog.Logger) (int, error) {
	log := logging.NewComponentLogger(logger, "review")
	invalidated := 0
	for _, index := range indices {
		scene, err := resolver.Resolve(index)
		if err != nil {
			return invalidated, err
		}
		fp, err := fper.Fingerprint(index, scene)
		if err != nil {
			return invalidated, err
		}
		entry, err := store.Get(ctx, fp)
		if err != nil {
			return invalidated, err
		}
		if entry == nil {
			continue
		}
		if err := store.Invalidate(ctx, fp); err != nil {
			return invalidated, err
		}
		invalidated++
		log.InfoContext(ctx, "invalidated frame",
			logging.Int(logging.FieldFrame, index),
			logging.String(logging.FieldScene, scene.Name),
			logging.String(logging.FieldFingerprint, fp.Short()))
	}
	return invalidated, nil
}
