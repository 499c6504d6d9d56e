package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"vidstyle/internal/cache"
	"vidstyle/internal/dispatch"
	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/services"
)

// FallbackPolicy controls what happens to frames that failed to stylize.
type FallbackPolicy string

const (
	// FallbackOriginal substitutes the source frame for failed ones.
	FallbackOriginal FallbackPolicy = "original"
	// FallbackAbort refuses to assemble an incomplete sequence.
	FallbackAbort FallbackPolicy = "abort"
)

// ManifestFileName is the manifest written alongside the output frames.
const ManifestFileName = "manifest.json"

// ManifestEntry records where one output frame came from.
type ManifestEntry struct {
	Index       int    `json:"index"`
	Scene       string `json:"scene"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Source      string `json:"source"`
}

// Manifest describes a completed assembly in strict frame order.
type Manifest struct {
	CreatedAt time.Time       `json:"created_at"`
	Total     int             `json:"total"`
	Stylized  int             `json:"stylized"`
	Fallback  int             `json:"fallback"`
	Entries   []ManifestEntry `json:"entries"`
}

// Assembler writes the ordered output sequence for a dispatch run.
type Assembler struct {
	store     *cache.Store
	frames    *frames.Store
	outputDir string
	policy    FallbackPolicy
	logger    *slog.Logger
}

// New constructs an assembler writing into outputDir.
func New(store *cache.Store, frameStore *frames.Store, outputDir string, policy FallbackPolicy, logger *slog.Logger) *Assembler {
	if policy == "" {
		policy = FallbackOriginal
	}
	return &Assembler{
		store:     store,
		frames:    frameStore,
		outputDir: outputDir,
		policy:    policy,
		logger:    logging.NewComponentLogger(logger, "assemble"),
	}
}

// Assemble writes every frame of the run into the output directory in
// index order and returns the manifest. With the abort policy, any
// failed frame stops the assembly before a single frame is written.
func (a *Assembler) Assemble(ctx context.Context, results []dispatch.Result) (*Manifest, error) {
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assemble", "run", "no results to assemble", nil)
	}

	ordered := make([]dispatch.Result, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].FrameIndex < ordered[j].FrameIndex })
	for i, result := range ordered {
		if result.FrameIndex != i {
			return nil, services.Wrap(services.ErrValidation, "assemble", "run",
				fmt.Sprintf("results do not cover frame %d", i), nil)
		}
	}

	if a.policy == FallbackAbort {
		for _, result := range ordered {
			if result.Outcome == dispatch.OutcomeFailed {
				return nil, services.Wrap(services.ErrValidation, "assemble", "run",
					fmt.Sprintf("frame %d failed and fallback policy is abort", result.FrameIndex), result.Err)
			}
		}
	}

	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("assemble: create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(a.outputDir, ".assemble.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("assemble: lock output directory: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "assemble", "run",
			fmt.Sprintf("output directory %s is locked by another run", a.outputDir), nil)
	}
	defer lock.Unlock()

	manifest := &Manifest{
		CreatedAt: time.Now().UTC(),
		Total:     len(ordered),
		Entries:   make([]ManifestEntry, 0, len(ordered)),
	}
	for _, result := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := ManifestEntry{
			Index: result.FrameIndex,
			Scene: result.SceneName,
		}

		var data []byte
		if result.Outcome != dispatch.OutcomeFailed {
			payload, err := a.store.Payload(ctx, result.Fingerprint)
			if err == nil {
				data = payload
				entry.Source = "stylized"
				entry.Fingerprint = result.Fingerprint.Short()
			} else {
				a.logger.WarnContext(ctx, "stylized payload unavailable",
					logging.Int(logging.FieldFrame, result.FrameIndex),
					logging.Error(err))
			}
		}
		if data == nil {
			if a.policy == FallbackAbort {
				return nil, services.Wrap(services.ErrValidation, "assemble", "run",
					fmt.Sprintf("frame %d has no stylized payload and fallback policy is abort", result.FrameIndex), result.Err)
			}
			original, err := a.frames.Read(result.FrameIndex)
			if err != nil {
				return nil, fmt.Errorf("assemble: fall back to original frame %d: %w", result.FrameIndex, err)
			}
			data = original
			entry.Source = "original"
		}

		if err := frames.WriteFrame(a.outputDir, result.FrameIndex, data); err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		if entry.Source == "stylized" {
			manifest.Stylized++
		} else {
			manifest.Fallback++
		}
		manifest.Entries = append(manifest.Entries, entry)
	}

	if err := a.writeManifest(manifest); err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "assembly complete",
		logging.Int("frames", manifest.Total),
		logging.Int("stylized", manifest.Stylized),
		logging.Int("fallback", manifest.Fallback))
	return manifest, nil
}

func (a *Assembler) writeManifest(manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("assemble: encode manifest: %w", err)
	}
	path := filepath.Join(a.outputDir, ManifestFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("assemble: write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("assemble: write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a previously written manifest from an output
// directory.
func LoadManifest(outputDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("assemble: read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("assemble: parse manifest: %w", err)
	}
	return &manifest, nil
}
