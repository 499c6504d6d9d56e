package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vidstyle/internal/assemble"
	"vidstyle/internal/dispatch"
	"vidstyle/internal/services/img2img"
)

// errPartialSuccess marks a run that finished with some frames falling
// back to their originals. main maps it to a distinct exit status so
// scripts can tell a partial render from a clean one.
var errPartialSuccess = errors.New("run finished with failed frames")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stylize all frames and assemble the output sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			frameStore, err := ctx.openFrames()
			if err != nil {
				return err
			}
			if err := frameStore.Validate(); err != nil {
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

			client := img2img.NewClient(img2img.Config{
				BaseURL:        cfg.Endpoint.BaseURL,
				APIKey:         cfg.Endpoint.APIKey,
				Model:          cfg.Endpoint.Model,
				Timeout:        cfg.RequestTimeout(),
				Steps:          cfg.Endpoint.Steps,
				Strength:       cfg.Endpoint.Strength,
				GuidanceScale:  cfg.Endpoint.GuidanceScale,
				ResizeWidth:    cfg.Endpoint.ResizeWidth,
				ResizeHeight:   cfg.Endpoint.ResizeHeight,
			})

			dispatcher := dispatch.New(store, frameStore, resolver, client, dispatch.Options{
				Workers:      cfg.Dispatcher.Workers,
				MaxAttempts:  cfg.Dispatcher.MaxAttempts,
				BackoffBase:  time.Duration(cfg.Dispatcher.BackoffBaseMS) * time.Millisecond,
				BackoffMax:   time.Duration(cfg.Dispatcher.BackoffMaxMS) * time.Millisecond,
				ClaimPoll:    time.Duration(cfg.Dispatcher.ClaimPollMS) * time.Millisecond,
				Model:        cfg.Endpoint.Model,
				Steps:        cfg.Endpoint.Steps,
				Strength:     cfg.Endpoint.Strength,
				Guidance:     cfg.Endpoint.GuidanceScale,
				ShowProgress: !noProgress && !cfg.Dispatcher.DisableProgressBar,
			}, logger)

			started := time.Now()
			results, summary, err := dispatcher.Run(runCtx)
			if err != nil {
				return err
			}

			assembler := assemble.New(store, frameStore, cfg.Paths.OutputDir,
				assemble.FallbackPolicy(cfg.Render.FallbackPolicy), logger)
			manifest, err := assembler.Assemble(runCtx, results)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Outcome", "Frames"},
				[][]string{
					{"fresh", strconv.Itoa(summary.Fresh)},
					{"cached", strconv.Itoa(summary.Cached)},
					{"deduped", strconv.Itoa(summary.Deduped)},
					{"failed", strconv.Itoa(summary.Failed)},
				},
				1,
			))
			fmt.Fprintf(out, "Assembled %d frames (%d stylized, %d fallback) into %s in %s\n",
				manifest.Total, manifest.Stylized, manifest.Fallback,
				cfg.Paths.OutputDir, time.Since(started).Round(time.Second))

			if summary.Failed > 0 {
				return fmt.Errorf("%w: %d of %d frames used the original as fallback",
					errPartialSuccess, summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}
