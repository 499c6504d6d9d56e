package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidstyle/internal/media/ffmpeg"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var output string
	var sourceVideo string
	var audioPath string
	var fps float64
	var quality string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Encode the output frame sequence into a video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rate := fps
			if rate <= 0 {
				rate = cfg.Render.FPS
			}
			if rate <= 0 {
				if sourceVideo == "" {
					return fmt.Errorf("no frame rate available; pass --fps or --source to probe one")
				}
				probed, err := ffmpeg.ProbeFPS(cmd.Context(), cfg.FFprobeBinary(), sourceVideo)
				if err != nil {
					return err
				}
				rate = probed
			}

			preset := ffmpeg.Quality(strings.TrimSpace(quality))
			if preset == "" {
				preset = ffmpeg.Quality(cfg.Render.Quality)
			}

			opts := ffmpeg.RenderOptions{
				Quality:   preset,
				FPS:       rate,
				AudioPath: audioPath,
				Sharpness: cfg.Render.Sharpness,
			}
			if err := ffmpeg.Render(cmd.Context(), cfg.FFmpegBinary(), cfg.Paths.OutputDir, output, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (%.3f fps, %s)\n", output, rate, preset)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "output.mp4", "Output video path")
	cmd.Flags().StringVar(&sourceVideo, "source", "", "Source video to probe for frame rate")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio file to mux in")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Frame rate override")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Quality preset: small, good, uncompressed")
	return cmd
}
