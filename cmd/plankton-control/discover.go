package main

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plankton-sim/plankton-go/pkg/discovery"
	"github.com/plankton-sim/plankton-go/pkg/version"
)

func newDiscoverCommand() *cobra.Command {
	var (
		timeout time.Duration
		iface   string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find simulations advertised via mDNS",
		Long: `
Browses for simulations started with "plankton --advertise" and lists
every advertised endpoint (stream adapters and control servers).
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: iface})
			services, err := discovery.Collect(cmd.Context(), browser, timeout)
			if err != nil {
				return err
			}
			printServices(cmd.OutOrStdout(), services)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&timeout, "browse-timeout", discovery.BrowseTimeout, "How long to browse")
	flags.StringVar(&iface, "interface", "", "Network interface to browse on (default all)")
	return cmd
}

func printServices(w io.Writer, services []*discovery.Service) {
	if len(services) == 0 {
		fmt.Fprintln(w, "No simulations found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tPROTOCOL\tADDRESS\tSETUP\tVERSION")
	for _, svc := range services {
		v := svc.Version
		if v != "" && version.CheckRemote(v) != nil {
			v += " (incompatible)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", svc.Device, svc.Protocol, serviceAddress(svc), svc.Setup, v)
	}
	tw.Flush()
}

// serviceAddress prefers the first resolved address over the host name.
func serviceAddress(svc *discovery.Service) string {
	host := svc.Host
	if len(svc.Addresses) > 0 {
		host = svc.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(svc.Port))
}
