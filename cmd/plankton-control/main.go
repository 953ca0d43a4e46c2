// Command plankton-control talks to the control server of a running
// simulation.
//
// Usage:
//
//	plankton-control [flags] [object [member [args...]]]
//
// Without an object the exposed objects are listed. With only an object its
// properties (with current values) and methods are printed. A property is
// read when no value is given and set when one is. Methods are called with
// the remaining arguments, each decoded as JSON and passed as a string if
// that fails.
//
// Examples:
//
//	plankton-control -r 127.0.0.1:10000
//	plankton-control simulation
//	plankton-control simulation speed 10
//	plankton-control device target 125
//	plankton-control simulation switch_setup hot
//
// Subcommands:
//
//	console     - Interactive console with the same grammar
//	discover    - Find simulations advertised via mDNS
//	version     - Compare client and simulation versions
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plankton-sim/plankton-go/pkg/control"
)

// DefaultAddress is where plankton usually exposes its control server.
const DefaultAddress = "127.0.0.1:10000"

// Options are shared by all subcommands.
type Options struct {
	Address string
	Timeout time.Duration
}

func (o *Options) dial(ctx context.Context) (*control.Client, error) {
	client, err := control.Dial(ctx, o.Address, o.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", o.Address, err)
	}
	return client, nil
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "plankton-control [flags] [object [member [args...]]]",
		Short: "Control a running plankton simulation",
		Long: `
This command connects to the JSON-RPC control server of a simulation
started with "plankton -r HOST:PORT". It lists the exposed objects,
reads and writes their properties and calls their methods.
`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			return execute(cmd.Context(), client, cmd.OutOrStdout(), args)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Method arguments may look like flags ("move -5").
	cmd.Flags().SetInterspersed(false)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Address, "rpc-host", "r", DefaultAddress, "HOST:PORT of the control server")
	flags.DurationVarP(&opts.Timeout, "timeout", "t", control.DefaultTimeout, "Timeout for each request")

	cmd.AddCommand(newConsoleCommand(opts))
	cmd.AddCommand(newDiscoverCommand())
	cmd.AddCommand(newVersionCommand(opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "An error occurred:\n%s\n", err)
		stop()
		os.Exit(1)
	}
}
