package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidstyle/internal/fingerprint"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Frame cache utilities",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts and payload size",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Entries"},
				[][]string{
					{"ready", strconv.Itoa(stats.Ready)},
					{"pending", strconv.Itoa(stats.Pending)},
					{"failed", strconv.Itoa(stats.Failed)},
				},
				1,
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Payload bytes: %d\n", stats.PayloadBytes)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry and payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the cache")
	return cmd
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	var frameIndices []int
	var sceneName string

	cmd := &cobra.Command{
		Use:   "invalidate [fingerprint...]",
		Short: "Invalidate cache entries by fingerprint, frame, or scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			invalidated := 0
			for _, arg := range args {
				fp := fingerprint.Fingerprint(arg)
				if !fp.Valid() {
					return fmt.Errorf("%q is not a fingerprint", arg)
				}
				if err := store.Invalidate(cmd.Context(), fp); err != nil {
					return err
				}
				invalidated++
			}

			targets := frameIndices
			if sceneName != "" || len(targets) > 0 {
				frameStore, err := ctx.openFrames()
				if err != nil {
					return err
				}
				resolver, err := ctx.loadResolver(frameStore)
				if err != nil {
					return err
				}
				if sceneName != "" {
					scene, ok := resolver.FindScene(sceneName)
					if !ok {
						return fmt.Errorf("scene %q not found", sceneName)
					}
					for i, s := range resolver.Scenes() {
						if s.Name != scene.Name {
							continue
						}
						for frame := s.StartFrame; frame < resolver.SceneEnd(i); frame++ {
							targets = append(targets, frame)
						}
					}
				}

				dispatcher, err := ctx.newDispatcher(store, frameStore, resolver, nil)
				if err != nil {
					return err
				}
				for _, index := range targets {
					scene, err := resolver.Resolve(index)
					if err != nil {
						return err
					}
					fp, err := dispatcher.Fingerprint(index, scene)
					if err != nil {
						return err
					}
					if err := store.Invalidate(cmd.Context(), fp); err != nil {
						return err
					}
					invalidated++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d entries\n", invalidated)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&frameIndices, "frame", nil, "Frame index to invalidate (repeatable)")
	cmd.Flags().StringVar(&sceneName, "scene", "", "Invalidate every frame of a scene")
	return cmd
}
