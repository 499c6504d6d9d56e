package schedule

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"vidstyle/internal/services"
)

// Scene is one row of the schedule: a named run of frames sharing a
// prompt, starting at StartFrame and ending where the next scene begins.
// Strength, when positive, overrides the configured denoising strength
// for the scene's frames.
type Scene struct {
	Name       string
	StartFrame int
	Prompt     string
	Strength   float64
}

var csvHeader = []string{"name", "frame", "prompt", "strength"}

// Load reads a schedule CSV. Rows must carry a name, a non-negative
// integer frame, and a prompt column (which may be empty until prompts
// are filled in). A fourth strength column is optional.
func Load(path string) ([]Scene, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "schedule", "load", fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "schedule", "load", fmt.Sprintf("parse %s", path), err)
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrValidation, "schedule", "load", fmt.Sprintf("%s is empty", path), nil)
	}

	header := records[0]
	if len(header) < 3 || len(header) > len(csvHeader) {
		return nil, services.Wrap(services.ErrValidation, "schedule", "load",
			fmt.Sprintf("%s: header has %d columns, want 3 or 4", path, len(header)), nil)
	}
	for i := range header {
		if strings.TrimSpace(strings.ToLower(header[i])) != csvHeader[i] {
			return nil, services.Wrap(services.ErrValidation, "schedule", "load",
				fmt.Sprintf("%s: header column %d is %q, want %q", path, i+1, header[i], csvHeader[i]), nil)
		}
	}

	scenes := make([]Scene, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		if len(record) != len(header) {
			return nil, services.Wrap(services.ErrValidation, "schedule", "load",
				fmt.Sprintf("%s line %d: %d columns, want %d", path, line, len(record), len(header)), nil)
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "schedule", "load",
				fmt.Sprintf("%s line %d: scene name required", path, line), nil)
		}
		start, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || start < 0 {
			return nil, services.Wrap(services.ErrValidation, "schedule", "load",
				fmt.Sprintf("%s line %d: frame %q is not a non-negative integer", path, line, record[1]), nil)
		}
		scene := Scene{
			Name:       name,
			StartFrame: start,
			Prompt:     strings.TrimSpace(record[2]),
		}
		if len(record) > 3 {
			raw := strings.TrimSpace(record[3])
			if raw != "" {
				strength, err := strconv.ParseFloat(raw, 64)
				if err != nil || strength <= 0 || strength > 1 {
					return nil, services.Wrap(services.ErrValidation, "schedule", "load",
						fmt.Sprintf("%s line %d: strength %q is not in (0, 1]", path, line, record[3]), nil)
				}
				scene.Strength = strength
			}
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// Save writes a schedule CSV, replacing any existing file.
func Save(path string, scenes []Scene) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("schedule save: %w", err)
	}

	// The strength column only appears when some scene overrides it, so
	// schedules that never use it stay in the three-column form the
	// prompt fill round-trip expects.
	columns := 3
	for _, scene := range scenes {
		if scene.Strength > 0 {
			columns = len(csvHeader)
			break
		}
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader[:columns]); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("schedule save: %w", err)
	}
	for _, scene := range scenes {
		record := []string{scene.Name, strconv.Itoa(scene.StartFrame), scene.Prompt}
		if columns > 3 {
			value := ""
			if scene.Strength > 0 {
				value = strconv.FormatFloat(scene.Strength, 'g', -1, 64)
			}
			record = append(record, value)
		}
		if err := writer.Write(record); err != nil {
			file.Close()
			os.Remove(tmp)
			return fmt.Errorf("schedule save: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("schedule save: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("schedule save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("schedule save: %w", err)
	}
	return nil
}

// Resolver answers which scene and prompt cover a given frame index.
type Resolver struct {
	scenes      []Scene
	totalFrames int
}

// NewResolver validates that scenes form a complete ordered partition of
// [0, totalFrames) and returns a resolver over them. Validation failures
// name the offending scene so the schedule can be fixed before any
// remote work starts.
func NewResolver(scenes []Scene, totalFrames int) (*Resolver, error) {
	if totalFrames <= 0 {
		return nil, services.Wrap(services.ErrValidation, "schedule", "resolve", "no frames to cover", nil)
	}
	if len(scenes) == 0 {
		return nil, services.Wrap(services.ErrValidation, "schedule", "resolve", "schedule has no scenes", nil)
	}

	ordered := make([]Scene, len(scenes))
	copy(ordered, scenes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartFrame < ordered[j].StartFrame })

	if first := ordered[0]; first.StartFrame != 0 {
		return nil, services.Wrap(services.ErrValidation, "schedule", "resolve",
			fmt.Sprintf("frames 0-%d are not covered: first scene %q starts at frame %d",
				first.StartFrame-1, first.Name, first.StartFrame), nil)
	}

	names := make(map[string]struct{}, len(ordered))
	for i, scene := range ordered {
		if _, dup := names[scene.Name]; dup {
			return nil, services.Wrap(services.ErrValidation, "schedule", "resolve",
				fmt.Sprintf("duplicate scene name %q", scene.Name), nil)
		}
		names[scene.Name] = struct{}{}

		if i > 0 && scene.StartFrame == ordered[i-1].StartFrame {
			return nil, services.Wrap(services.ErrValidation, "schedule", "resolve",
				fmt.Sprintf("scenes %q and %q both start at frame %d",
					ordered[i-1].Name, scene.Name, scene.StartFrame), nil)
		}
		if scene.StartFrame >= totalFrames {
			return nil, services.Wrap(services.ErrValidation, "schedule", "resolve",
				fmt.Sprintf("scene %q starts at frame %d but only %d frames exist",
					scene.Name, scene.StartFrame, totalFrames), nil)
		}
		if scene.Prompt == "" {
			return nil, services.Wrap(services.ErrValidation, "schedule", "resolve",
				fmt.Sprintf("scene %q has no prompt", scene.Name), nil)
		}
	}

	return &Resolver{scenes: ordered, totalFrames: totalFrames}, nil
}

// Resolve returns the scene covering a frame index.
func (r *Resolver) Resolve(frameIndex int) (Scene, error) {
	if frameIndex < 0 || frameIndex >= r.totalFrames {
		return Scene{}, services.Wrap(services.ErrValidation, "schedule", "resolve",
			fmt.Sprintf("frame %d outside range [0, %d)", frameIndex, r.totalFrames), nil)
	}
	// First scene starting after frameIndex; the one before it covers it.
	idx := sort.Search(len(r.scenes), func(i int) bool {
		return r.scenes[i].StartFrame > frameIndex
	})
	return r.scenes[idx-1], nil
}

// Scenes returns the validated scenes in frame order.
func (r *Resolver) Scenes() []Scene {
	out := make([]Scene, len(r.scenes))
	copy(out, r.scenes)
	return out
}

// TotalFrames returns the frame count the resolver covers.
func (r *Resolver) TotalFrames() int { return r.totalFrames }

// SceneEnd returns the exclusive end frame of the scene at position i.
func (r *Resolver) SceneEnd(i int) int {
	if i+1 < len(r.scenes) {
		return r.scenes[i+1].StartFrame
	}
	return r.totalFrames
}

// FindScene returns the scene with the given name.
func (r *Resolver) FindScene(name string) (Scene, bool) {
	for _, scene := range r.scenes {
		if scene.Name == name {
			return scene, true
		}
	}
	return Scene{}, false
}
