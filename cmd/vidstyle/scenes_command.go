package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidstyle/internal/scenecut"
	"vidstyle/internal/schedule"
	"vidstyle/internal/services/promptgen"
)

func newScenesCommand(ctx *commandContext) *cobra.Command {
	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "Scene schedule utilities",
	}

	scenesCmd.AddCommand(newScenesDetectCommand(ctx))
	scenesCmd.AddCommand(newScenesFillCommand(ctx))
	scenesCmd.AddCommand(newScenesRepromptCommand(ctx))
	scenesCmd.AddCommand(newScenesShowCommand(ctx))

	return scenesCmd
}

func newScenesDetectCommand(ctx *commandContext) *cobra.Command {
	var manualCuts []int
	var mergeWindow int

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect scene cuts and write the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			frameStore, err := ctx.openFrames()
			if err != nil {
				return err
			}

			detector := scenecut.NewHistogramDetector(cfg.Scenes.Threshold, cfg.Scenes.HistogramBins, logger)
			cuts, err := detector.Detect(cmd.Context(), frameStore)
			if err != nil {
				return err
			}
			merged := scenecut.MergeCuts(cuts, manualCuts, mergeWindow)
			scenes := scenecut.BuildScenes(merged)

			if err := schedule.Save(cfg.Paths.ScenesFile, scenes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d scenes to %s; fill prompts with `vidstyle scenes fill`\n",
				len(scenes), cfg.Paths.ScenesFile)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&manualCuts, "cut", nil, "Manual cut frame (repeatable); overrides detected cuts nearby")
	cmd.Flags().IntVar(&mergeWindow, "merge-window", 2, "Frames within which a detected cut is folded into a manual one")
	return cmd
}

func newScenesFillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fill",
		Short: "Fill scene prompts via the configured LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(cfg.Paths.ScenesFile)
			if err != nil {
				return fmt.Errorf("read schedule: %w", err)
			}

			client := promptgen.NewClient(promptgen.Config{
				APIKey:         cfg.PromptGen.APIKey,
				BaseURL:        cfg.PromptGen.BaseURL,
				Model:          cfg.PromptGen.Model,
				TimeoutSeconds: cfg.PromptGen.TimeoutSeconds,
			})
			filled, err := client.FillSchedule(cmd.Context(), string(raw))
			if err != nil {
				return err
			}

			// Round-trip through the parser so a malformed response never
			// replaces a good schedule.
			tmp := cfg.Paths.ScenesFile + ".filled"
			if err := os.WriteFile(tmp, []byte(filled+"\n"), 0o644); err != nil {
				return fmt.Errorf("write filled schedule: %w", err)
			}
			scenes, err := schedule.Load(tmp)
			if err != nil {
				os.Remove(tmp)
				return fmt.Errorf("generated schedule is invalid: %w", err)
			}
			os.Remove(tmp)
			if err := schedule.Save(cfg.Paths.ScenesFile, scenes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filled prompts for %d scenes in %s\n", len(scenes), cfg.Paths.ScenesFile)
			return nil
		},
	}
}

func newScenesRepromptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprompt <scene>",
		Short: "Generate a fresh prompt for one scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			scenes, err := schedule.Load(cfg.Paths.ScenesFile)
			if err != nil {
				return err
			}
			found := -1
			for i, scene := range scenes {
				if scene.Name == name {
					found = i
					break
				}
			}
			if found < 0 {
				return fmt.Errorf("scene %q not found in %s", name, cfg.Paths.ScenesFile)
			}

			client := promptgen.NewClient(promptgen.Config{
				APIKey:         cfg.PromptGen.APIKey,
				BaseURL:        cfg.PromptGen.BaseURL,
				Model:          cfg.PromptGen.Model,
				TimeoutSeconds: cfg.PromptGen.TimeoutSeconds,
			})
			prompt, err := client.ScenePrompt(cmd.Context(), name)
			if err != nil {
				return err
			}
			scenes[found].Prompt = prompt
			if err := schedule.Save(cfg.Paths.ScenesFile, scenes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "New prompt for %s: %s\n", name, prompt)
			return nil
		},
	}
}

func newScenesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the scene schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scenes, err := schedule.Load(cfg.Paths.ScenesFile)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(scenes))
			for i, scene := range scenes {
				end := "end"
				if i+1 < len(scenes) {
					end = strconv.Itoa(scenes[i+1].StartFrame - 1)
				}
				prompt := scene.Prompt
				if prompt == "" {
					prompt = "(empty)"
				}
				rows = append(rows, []string{
					scene.Name,
					strconv.Itoa(scene.StartFrame),
					end,
					prompt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Scene", "Start", "End", "Prompt"},
				rows,
				1, 2,
			))
			return nil
		},
	}
}
