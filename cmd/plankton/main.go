// Command plankton runs a simulated device and exposes it through one of
// its protocol adapters.
//
// Usage:
//
//	plankton [flags] [device [adapter args...]]
//
// Without a device the available devices are listed. Everything after the
// device name is passed to the adapter, for example:
//
//	plankton -r 127.0.0.1:10000 linkam_t95 -p 9999
//	plankton -s hot -e 10 linkam_t95 -- --telnet-mode
//	plankton -i -p stream example_motor
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/plankton-sim/plankton-go/pkg/adapter"
	"github.com/plankton-sim/plankton-go/pkg/control"
	"github.com/plankton-sim/plankton-go/pkg/devices"
	"github.com/plankton-sim/plankton-go/pkg/discovery"
	"github.com/plankton-sim/plankton-go/pkg/log"
	"github.com/plankton-sim/plankton-go/pkg/metrics"
	"github.com/plankton-sim/plankton-go/pkg/persistence"
	"github.com/plankton-sim/plankton-go/pkg/registry"
	"github.com/plankton-sim/plankton-go/pkg/simulation"
	"github.com/plankton-sim/plankton-go/pkg/version"
)

// Config holds the command line options.
type Config struct {
	RPCHost       string
	Setup         string
	ListProtocols bool
	ShowInterface bool
	Protocol      string
	CycleDelay    float64
	Speed         float64
	SetupFile     string
	Version       bool

	EventLog    string
	MetricsAddr string
	Advertise   bool
	Interface   string
	StateFile   string
	LogLevel    string

	Device      string
	AdapterArgs []string
}

func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("plankton", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&cfg.RPCHost, "rpc-host", "r", "", "HOST:PORT for exposing the device via JSON-RPC")
	fs.StringVarP(&cfg.Setup, "setup", "s", "", "Name of the setup to load")
	fs.BoolVarP(&cfg.ListProtocols, "list-protocols", "l", false, "List available protocols for the selected device")
	fs.BoolVarP(&cfg.ShowInterface, "show-interface", "i", false, "Show the command interface of the device adapter")
	fs.StringVarP(&cfg.Protocol, "protocol", "p", "", "Communication protocol to expose the device with")
	fs.Float64VarP(&cfg.CycleDelay, "cycle-delay", "c", 0.1,
		"Approximate time to spend in each cycle of the simulation, 0 for maximum simulation rate")
	fs.Float64VarP(&cfg.Speed, "speed", "e", 1.0,
		"Simulation speed, elapsed time between two cycles is multiplied with this to get the simulated time")
	fs.StringVarP(&cfg.SetupFile, "setup-file", "f", "", "YAML file with additional setups")
	fs.BoolVarP(&cfg.Version, "version", "v", false, "Print the version and exit")

	fs.StringVar(&cfg.EventLog, "event-log", "", "Write protocol and state events to this file (.plog)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on HOST:PORT")
	fs.BoolVar(&cfg.Advertise, "advertise", false, "Advertise the adapters and control server via mDNS")
	fs.StringVar(&cfg.Interface, "interface", "", "Network interface for mDNS (default all)")
	fs.StringVar(&cfg.StateFile, "state-file", "", "Restore device parameters from this file and save them on exit")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return fs
}

// parseArgs parses args (without the program name).
func parseArgs(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := newFlagSet(cfg)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		cfg.Device = rest[0]
		cfg.AdapterArgs = rest[1:]
		if len(cfg.AdapterArgs) > 0 && cfg.AdapterArgs[0] == "--" {
			cfg.AdapterArgs = cfg.AdapterArgs[1:]
		}
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "An error occurred:\n%s\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	if cfg.Version {
		fmt.Fprintln(stdout, version.Current)
		return nil
	}

	reg := devices.Default()
	if cfg.SetupFile != "" {
		if err := reg.LoadSetupFile(cfg.SetupFile); err != nil {
			return err
		}
	}

	if cfg.Device == "" {
		listDevices(stdout, reg)
		return nil
	}

	entry, err := reg.Lookup(cfg.Device)
	if err != nil {
		return err
	}

	if cfg.ListProtocols {
		fmt.Fprintln(stdout, strings.Join(adapter.Protocols(entry.Interfaces), "\n"))
		return nil
	}

	iface, err := adapter.Select(entry.Name, entry.Interfaces, cfg.Protocol)
	if err != nil {
		return err
	}

	if cfg.ShowInterface {
		dev, _, err := reg.Create(entry.Name, cfg.Setup)
		if err != nil {
			return err
		}
		a, err := iface.New(dev, cfg.AdapterArgs)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, a.Documentation())
		return nil
	}

	return simulate(ctx, cfg, reg, iface, stderr)
}

func listDevices(w io.Writer, reg *registry.Registry) {
	lines := []string{
		"Please specify a device to simulate.",
		"The following devices are available:",
	}
	for _, name := range reg.Names() {
		lines = append(lines, "\t"+name)
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func simulate(ctx context.Context, cfg *Config, reg *registry.Registry, iface adapter.Interface, stderr io.Writer) error {
	logger, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	loggers := []log.Logger{log.NewSlogAdapter(logger)}
	if cfg.EventLog != "" {
		fl, err := log.NewFileLogger(cfg.EventLog)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer func() {
			if err := fl.Err(); err != nil {
				logger.Warn("Event log incomplete", "path", cfg.EventLog, "written", fl.Written(), "error", err)
			}
			fl.Close()
		}()
		loggers = append(loggers, fl)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		srv := metrics.NewServer(m, cfg.MetricsAddr)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer srv.Stop()
		logger.Info("Serving metrics", "addr", srv.Addr())
	}

	var store *persistence.Store
	if cfg.StateFile != "" {
		store = persistence.NewStore(cfg.StateFile)
	}

	var advertiser *discovery.MDNSAdvertiser
	if cfg.Advertise {
		acfg := discovery.DefaultAdvertiserConfig()
		acfg.Interface = cfg.Interface
		advertiser = discovery.NewMDNSAdvertiser(acfg)
		defer advertiser.StopAll()
	}

	cycleDelay := time.Duration(cfg.CycleDelay * float64(time.Second))
	sim, err := simulation.New(simulation.Config{
		DeviceName:     cfg.Device,
		Setup:          cfg.Setup,
		Registry:       reg,
		Adapters:       simulation.AdapterFor(iface, cfg.AdapterArgs),
		ControlAddress: cfg.RPCHost,
		CycleDelay:     &cycleDelay,
		Speed:          &cfg.Speed,
		Logger:         log.NewMultiLogger(loggers...),
		Metrics:        m,
		Store:          store,
		OnStarted: func(s *simulation.Simulation) {
			logStarted(logger, s)
			if advertiser != nil {
				advertise(ctx, logger, advertiser, s)
			}
		},
	})
	if err != nil {
		return err
	}

	err = sim.Start(ctx)
	logger.Info("Simulation stopped", "cycles", sim.Cycles(), "runtime", sim.Runtime())
	return err
}

// endpoints lists the listening adapters and the control server.
func endpoints(s *simulation.Simulation) []discovery.Endpoint {
	var eps []discovery.Endpoint
	for _, a := range s.Adapters().Adapters() {
		if l, ok := a.(interface{ Addr() net.Addr }); ok && l.Addr() != nil {
			eps = append(eps, discovery.Endpoint{Protocol: a.Protocol(), Addr: l.Addr()})
		}
	}
	if srv := s.ControlServer(); srv != nil && srv.Addr() != nil {
		eps = append(eps, discovery.Endpoint{Protocol: control.Protocol, Addr: srv.Addr()})
	}
	return eps
}

func logStarted(logger *slog.Logger, s *simulation.Simulation) {
	for _, ep := range endpoints(s) {
		logger.Info("Listening", "protocol", ep.Protocol, "addr", ep.Addr.String())
	}
	logger.Info("Simulation started",
		"device", s.DeviceName(),
		"setup", s.Setup(),
		"cycle_delay", s.CycleDelay(),
		"speed", s.Speed())
}

func advertise(ctx context.Context, logger *slog.Logger, adv *discovery.MDNSAdvertiser, s *simulation.Simulation) {
	base := discovery.ServiceInfo{
		Device:  s.DeviceName(),
		Setup:   s.Setup(),
		Version: version.Current,
	}
	instances, err := discovery.AdvertiseEndpoints(ctx, adv, base, endpoints(s))
	if err != nil {
		logger.Warn("mDNS advertising failed", "error", err)
		return
	}
	for _, instance := range instances {
		logger.Info("Advertising", "instance", instance, "service", discovery.ServiceType)
	}
}
