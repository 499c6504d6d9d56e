package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidstyle/internal/frames"
	"vidstyle/internal/media/ffmpeg"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "extract <video>",
		Short: "Extract a video into the configured frames directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if (width > 0) != (height > 0) {
				return fmt.Errorf("--width and --height must be provided together")
			}

			if err := ffmpeg.ExtractFrames(cmd.Context(), cfg.FFmpegBinary(), args[0], cfg.Paths.FramesDir, width, height); err != nil {
				return err
			}

			store, err := frames.Open(cfg.Paths.FramesDir)
			if err != nil {
				return err
			}
			if err := store.Validate(); err != nil {
				return err
			}

			fps, err := ffmpeg.ProbeFPS(cmd.Context(), cfg.FFprobeBinary(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d frames to %s (source %.3f fps)\n",
				store.Count(), cfg.Paths.FramesDir, fps)
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Resize frames to this width")
	cmd.Flags().IntVar(&height, "height", 0, "Resize frames to this height")
	return cmd
}
