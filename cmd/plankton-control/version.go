package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plankton-sim/plankton-go/pkg/version"
)

// simulationVersionMethod reports the version of a running simulation.
const simulationVersionMethod = "simulation.version"

func newVersionCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Compare client and simulation versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := opts.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			var remote string
			if err := client.CallInto(ctx, &remote, simulationVersionMethod); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client     %s\n", version.Current)
			fmt.Fprintf(out, "simulation %s\n", remote)
			return version.CheckRemote(remote)
		},
	}
}
