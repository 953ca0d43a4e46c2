// Command plankton-log is a tool for viewing and analyzing simulation
// event files.
//
// Event files are written by plankton when started with --event-log.
//
// Usage:
//
//	plankton-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View events in human-readable format
//	export   Export events to JSONL or CSV
//	filter   Filter events and write them to a new file
//	stats    Show statistics about the event file
//
// Examples:
//
//	# View all events
//	plankton-log view linkam.plog
//
//	# View only stream adapter traffic
//	plankton-log view --layer adapter linkam.plog
//
//	# View device state changes
//	plankton-log view --category state linkam.plog
//
//	# Export control server calls to CSV
//	plankton-log export --format csv --layer control -o calls.csv linkam.plog
//
//	# Keep one connection
//	plankton-log filter --conn-id abc12345-... -o conn.plog linkam.plog
//
//	# Show statistics
//	plankton-log stats linkam.plog
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plankton-sim/plankton-go/cmd/plankton-log/commands"
)

func addFilterFlags(flags *pflag.FlagSet, o *commands.FilterOptions) {
	flags.StringVar(&o.ConnID, "conn-id", "", "Filter by connection ID")
	flags.StringVar(&o.Device, "device", "", "Filter by device name")
	flags.StringVar(&o.Command, "command", "", "Filter by command or RPC method")
	flags.StringVar(&o.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	flags.StringVar(&o.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	flags.StringVar(&o.Layer, "layer", "", "Filter by layer (transport, adapter, control, simulation)")
	flags.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out, none)")
	flags.StringVar(&o.Category, "category", "", "Filter by category (message, state, error)")
}

func newViewCommand() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "view [flags] <file.plog>",
		Short: "View events in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd.Flags(), &opts)
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		opts   commands.FilterOptions
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [flags] <file.plog>",
		Short: "Export events to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return commands.RunExport(args[0], format, filter, w)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&format, "format", commands.FormatJSONL, "Output format (jsonl, csv)")
	flags.StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	addFilterFlags(flags, &opts)
	return cmd
}

func newFilterCommand() *cobra.Command {
	var (
		opts   commands.FilterOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter [flags] -o <out.plog> <file.plog>",
		Short: "Filter events and write them to a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			count, err := commands.RunFilter(args[0], output, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", count, output)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "Output file (required)")
	_ = cmd.MarkFlagRequired("output")
	addFilterFlags(flags, &opts)
	return cmd
}

func newStatsCommand() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "stats [flags] <file.plog>",
		Short: "Show statistics about the event file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return commands.RunStats(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd.Flags(), &opts)
	return cmd
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plankton-log <command> [flags] <file.plog>",
		Short:         "Plankton event log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newViewCommand(), newExportCommand(), newFilterCommand(), newStatsCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
