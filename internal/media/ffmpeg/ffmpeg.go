// Package ffmpeg shells out to ffmpeg and ffprobe for the video
// boundary of the pipeline: extracting a frame sequence from a source
// video and rendering a processed sequence back into one.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vidstyle/internal/services"
)

var commandContext = exec.CommandContext

// Quality selects a render preset.
type Quality string

const (
	QualitySmall        Quality = "small"
	QualityGood         Quality = "good"
	QualityUncompressed Quality = "uncompressed"
)

// framePattern is the printf pattern matching the frame store's naming.
const framePattern = "frame_%05d.png"

// ProbeFPS reads the average frame rate of a video's first video stream.
func ProbeFPS(ctx context.Context, ffprobeBinary, videoPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}
	cmd := commandContext(ctx, ffprobeBinary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "probe fps", videoPath, commandError(err))
	}
	fps, err := parseFrameRate(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "probe fps", videoPath, err)
	}
	return fps, nil
}

// parseFrameRate parses ffprobe's avg_frame_rate, which is either a
// rational like "30000/1001" or a plain number.
func parseFrameRate(value string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty frame rate")
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", value, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", value, err)
		}
		if d == 0 {
			return 0, fmt.Errorf("frame rate %q has zero denominator", value)
		}
		return n / d, nil
	}
	fps, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", value, err)
	}
	return fps, nil
}

// ExtractFrames decodes every frame of a video into numbered PNG files
// in outputDir. A non-zero width and height scales frames on the way
// out.
func ExtractFrames(ctx context.Context, ffmpegBinary, videoPath, outputDir string, width, height int) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("extract frames: create output directory: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
	}
	if width > 0 && height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args,
		"-fps_mode", "passthrough",
		"-start_number", "0",
		filepath.Join(outputDir, framePattern),
	)
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "extract frames",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}

// RenderOptions control how a frame sequence is encoded back to video.
type RenderOptions struct {
	Quality   Quality
	FPS       float64
	AudioPath string
	Sharpness float64
}

// Render encodes the numbered PNG frames in framesDir into a video at
// outputPath, optionally muxing in an audio track.
func Render(ctx context.Context, ffmpegBinary, framesDir, outputPath string, opts RenderOptions) error {
	if opts.FPS <= 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "render", "frame rate required", nil)
	}
	args, err := buildRenderArgs(framesDir, outputPath, opts)
	if err != nil {
		return err
	}
	cmd := commandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "render",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}

func buildRenderArgs(framesDir, outputPath string, opts RenderOptions) ([]string, error) {
	hasAudio := opts.AudioPath != ""

	var videoArgs, audioArgs []string
	switch opts.Quality {
	case QualitySmall:
		videoArgs = []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "28", "-pix_fmt", "yuv420p"}
		audioArgs = []string{"-c:a", "aac", "-b:a", "192k"}
	case QualityGood, "":
		videoArgs = []string{"-c:v", "libx264", "-preset", "medium", "-crf", "18", "-pix_fmt", "yuv420p"}
		audioArgs = []string{"-c:a", "aac", "-b:a", "320k"}
	case QualityUncompressed:
		videoArgs = []string{"-c:v", "libx264", "-preset", "veryslow", "-crf", "0", "-pix_fmt", "yuv444p"}
		audioArgs = []string{"-c:a", "copy"}
	default:
		return nil, services.Wrap(services.ErrValidation, "ffmpeg", "render",
			fmt.Sprintf("unknown quality preset %q", opts.Quality), nil)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", filepath.Join(framesDir, framePattern),
	}
	if hasAudio {
		args = append(args, "-i", opts.AudioPath)
	}
	args = append(args, videoArgs...)
	if hasAudio {
		args = append(args, audioArgs...)
	}
	if opts.Sharpness > 0 {
		sharp := strconv.FormatFloat(opts.Sharpness, 'f', -1, 64)
		args = append(args, "-vf", fmt.Sprintf("unsharp=5:5:%s:5:5:%s", sharp, sharp))
	}
	args = append(args, "-shortest", outputPath)
	return args, nil
}

func commandError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
