package main

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	mmaterpc "github.com/glimte/mmate-rpc"
)

var errUnhealthy = errors.New("unhealthy")

func newHealthCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the broker connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, err := mmaterpc.NewClientFromConfig(ctx, a.cfg, mmaterpc.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			report := client.Health(ctx)
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "Status: %s (%v)\n", report.Status, report.Duration)
				for name, check := range report.Checks {
					fmt.Fprintf(out, "  %-12s %-10s %s", name, check.Status, check.Message)
					if check.Error != "" {
						fmt.Fprintf(out, " (%s)", check.Error)
					}
					fmt.Fprintln(out)
				}
			}

			if !report.Healthy() {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
