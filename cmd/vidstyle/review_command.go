package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"vidstyle/internal/frames"
	"vidstyle/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Mark frames for recomputation",
	}

	reviewCmd.AddCommand(newReviewMarkCommand(ctx, "mark", "Mark frames for recomputation", true))
	reviewCmd.AddCommand(newReviewMarkCommand(ctx, "unmark", "Remove marks from frames", false))
	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewAutoCommand(ctx))
	reviewCmd.AddCommand(newReviewApplyCommand(ctx))

	return reviewCmd
}

func (c *commandContext) markFilePath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(cfg.Review.MarkedFile) {
		return cfg.Review.MarkedFile, nil
	}
	return filepath.Join(cfg.Paths.OutputDir, cfg.Review.MarkedFile), nil
}

func newReviewMarkCommand(ctx *commandContext, use, short string, mark bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <frame>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.markFilePath()
			if err != nil {
				return err
			}
			set, err := review.LoadMarks(path)
			if err != nil {
				return err
			}
			for _, arg := range args {
				index, err := strconv.Atoi(arg)
				if err != nil || index < 0 {
					return fmt.Errorf("%q is not a frame index", arg)
				}
				if mark {
					set.Mark(index)
				} else {
					set.Unmark(index)
				}
			}
			if err := set.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames marked\n", set.Len())
			return nil
		},
	}
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List marked frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.markFilePath()
			if err != nil {
				return err
			}
			set, err := review.LoadMarks(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if set.Len() == 0 {
				fmt.Fprintln(out, "No frames marked")
				return nil
			}
			for _, index := range set.Indices() {
				fmt.Fprintln(out, frames.FrameName(index))
			}
			return nil
		},
	}
}

func newReviewAutoCommand(ctx *commandContext) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Auto-flag inconsistent frames in the output sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if threshold <= 0 {
				threshold = cfg.Review.DeltaThreshold
			}
			if threshold <= 0 {
				return fmt.Errorf("no delta threshold configured; set review.delta_threshold or pass --threshold")
			}

			outputStore, err := frames.Open(cfg.Paths.OutputDir)
			if err != nil {
				return err
			}
			flagged, err := review.AutoFlag(cmd.Context(), outputStore, threshold, logger)
			if err != nil {
				return err
			}

			path, err := ctx.markFilePath()
			if err != nil {
				return err
			}
			set, err := review.LoadMarks(path)
			if err != nil {
				return err
			}
			for _, index := range flagged {
				set.Mark(index)
			}
			if err := set.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flagged %d frames (%d marked total)\n", len(flagged), set.Len())
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Mean pixel delta (0-255) above which a frame is flagged")
	return cmd
}

func newReviewApplyCommand(ctx *commandContext) *cobra.Command {
	var keepMarks bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Invalidate cache entries for marked frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			path, err := ctx.markFilePath()
			if err != nil {
				return err
			}
			set, err := review.LoadMarks(path)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No frames marked")
				return nil
			}

			frameStore, err := ctx.openFrames()
			if err != nil {
				return err
			}
			resolver, err := ctx.loadResolver(frameStore)
			if err != nil {
				return err
			}
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			dispatcher, err := ctx.newDispatcher(store, frameStore, resolver, nil)
			if err != nil {
				return err
			}
			count, err := review.Invalidate(cmd.Context(), store, resolver, dispatcher, set.Indices(), logger)
			if err != nil {
				return err
			}

			if !keepMarks {
				for _, index := range set.Indices() {
					set.Unmark(index)
				}
				if err := set.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries; the next run recomputes them\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepMarks, "keep-marks", false, "Keep marks after invalidating")
	return cmd
}
