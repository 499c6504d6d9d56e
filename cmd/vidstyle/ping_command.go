package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidstyle/internal/services/img2img"
)

func newPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the stylization endpoint is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := img2img.NewClient(img2img.Config{
				BaseURL: cfg.Endpoint.BaseURL,
				APIKey:  cfg.Endpoint.APIKey,
				Timeout: cfg.RequestTimeout(),
			})

			started := time.Now()
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s responded in %s\n",
				cfg.Endpoint.BaseURL, time.Since(started).Round(time.Millisecond))
			return nil
		},
	}
}
