package scenecut

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sort"

	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/schedule"
)

// Detector produces a sorted list of cut frame indices: frames where a
// new scene begins. Frame zero is implied and never reported.
type Detector interface {
	Detect(ctx context.Context, store *frames.Store) ([]int, error)
}

// HistogramDetector flags a cut when the hue histograms of consecutive
// frames diverge past a chi-squared distance threshold.
type HistogramDetector struct {
	Threshold float64
	Bins      int

	logger *slog.Logger
}

// NewHistogramDetector builds the default detector. Zero-valued
// threshold and bins fall back to 0.8 and 50.
func NewHistogramDetector(threshold float64, bins int, logger *slog.Logger) *HistogramDetector {
	if threshold <= 0 {
		threshold = 0.8
	}
	if bins <= 0 {
		bins = 50
	}
	return &HistogramDetector{
		Threshold: threshold,
		Bins:      bins,
		logger:    logging.NewComponentLogger(logger, "scenecut"),
	}
}

// Detect scans the frame sequence in order, comparing each frame's hue
// histogram against its predecessor.
func (d *HistogramDetector) Detect(ctx context.Context, store *frames.Store) ([]int, error) {
	indices := store.Indices()
	if len(indices) == 0 {
		return nil, fmt.Errorf("scenecut: no frames to scan")
	}

	var cuts []int
	var prev []float64
	for _, index := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Read(index)
		if err != nil {
			return nil, fmt.Errorf("scenecut: %w", err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("scenecut: decode frame %d: %w", index, err)
		}

		hist := hueHistogram(img, d.Bins)
		if prev != nil {
			diff := chiSquaredDistance(prev, hist)
			if diff > d.Threshold {
				d.logger.DebugContext(ctx, "scene cut detected",
					logging.Int(logging.FieldFrame, index),
					logging.Float64("distance", diff))
				cuts = append(cuts, index)
			}
		}
		prev = hist
	}

	d.logger.InfoContext(ctx, "scene scan complete",
		logging.Int("frames", len(indices)),
		logging.Int("cuts", len(cuts)))
	return cuts, nil
}

// hueHistogram buckets pixel hues into bins and min-max normalizes the
// counts to [0, 1] so distances are comparable across frame sizes.
func hueHistogram(img image.Image, bins int) []float64 {
	hist := make([]float64, bins)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			h := hue(img.At(x, y).RGBA())
			bin := int(h / 360.0 * float64(bins))
			if bin >= bins {
				bin = bins - 1
			}
			hist[bin]++
		}
	}

	minVal, maxVal := hist[0], hist[0]
	for _, v := range hist[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal > minVal {
		for i, v := range hist {
			hist[i] = (v - minVal) / (maxVal - minVal)
		}
	}
	return hist
}

// hue converts 16-bit RGBA channel values to a hue angle in [0, 360).
func hue(r, g, b, _ uint32) float64 {
	rf := float64(r) / 65535.0
	gf := float64(g) / 65535.0
	bf := float64(b) / 65535.0

	maxC := rf
	if gf > maxC {
		maxC = gf
	}
	if bf > maxC {
		maxC = bf
	}
	minC := rf
	if gf < minC {
		minC = gf
	}
	if bf < minC {
		minC = bf
	}
	delta := maxC - minC
	if delta == 0 {
		return 0
	}

	var h float64
	switch maxC {
	case rf:
		h = (gf - bf) / delta
	case gf:
		h = 2 + (bf-rf)/delta
	default:
		h = 4 + (rf-gf)/delta
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h
}

// chiSquaredDistance is the alternative chi-squared histogram distance:
// 2 * sum((a-b)^2 / (a+b)). Zero for identical histograms, growing with
// divergence.
func chiSquaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		denom := a[i] + b[i]
		if denom == 0 {
			continue
		}
		d := a[i] - b[i]
		sum += d * d / denom
	}
	return 2 * sum
}

// MergeCuts combines detected cuts with a manual override list. Manual
// cuts win: any detected cut within window frames of a manual cut is
// dropped as the same transition, then the lists are merged in order.
func MergeCuts(detected, manual []int, window int) []int {
	if window < 0 {
		window = 0
	}
	kept := make([]int, 0, len(detected)+len(manual))
	for _, cut := range detected {
		overlap := false
		for _, m := range manual {
			if cut >= m-window && cut <= m+window {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, cut)
		}
	}
	kept = append(kept, manual...)
	sort.Ints(kept)

	merged := kept[:0]
	last := -1
	for _, cut := range kept {
		if cut == last || cut <= 0 {
			continue
		}
		merged = append(merged, cut)
		last = cut
	}
	return merged
}

// BuildScenes turns a cut list into a schedule covering every frame. The
// first scene always starts at frame zero; prompts are left empty for
// the prompt generator or an operator to fill in.
func BuildScenes(cuts []int) []schedule.Scene {
	starts := append([]int{0}, cuts...)
	scenes := make([]schedule.Scene, 0, len(starts))
	for i, start := range starts {
		scenes = append(scenes, schedule.Scene{
			Name:       fmt.Sprintf("scene%03d", i),
			StartFrame: start,
		})
	}
	return scenes
}
