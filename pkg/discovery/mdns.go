package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces simulation endpoints.
type Advertiser interface {
	// Advertise starts announcing an endpoint. An endpoint with the same
	// instance name is replaced.
	Advertise(ctx context.Context, info *ServiceInfo) error

	// Update replaces the TXT records of an advertised endpoint.
	Update(info *ServiceInfo) error

	// Stop ends the announcement of one instance.
	Stop(instance string) error

	// StopAll ends all announcements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance name
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// interfaces returns the network interfaces to use, nil for all.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts advertising an endpoint.
func (a *MDNSAdvertiser) Advertise(_ context.Context, info *ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	instance := info.InstanceName()

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[instance]; exists {
		server.Shutdown()
		delete(a.servers, instance)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		info.Port,
		TXTRecordsToStrings(EncodeTXT(info)),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", instance, err)
	}

	a.servers[instance] = server
	return nil
}

// Update replaces the TXT records of an advertised endpoint.
func (a *MDNSAdvertiser) Update(info *ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[info.InstanceName()]
	if !exists {
		return ErrNotFound
	}
	server.SetText(TXTRecordsToStrings(EncodeTXT(info)))
	return nil
}

// Stop ends the announcement of one instance.
func (a *MDNSAdvertiser) Stop(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[instance]
	if !exists {
		return ErrNotFound
	}
	server.Shutdown()
	delete(a.servers, instance)
	return nil
}

// StopAll ends all announcements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for instance, server := range a.servers {
		server.Shutdown()
		delete(a.servers, instance)
	}
}

// Instances returns the advertised instance names, sorted.
func (a *MDNSAdvertiser) Instances() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.servers))
	for name := range a.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// MDNSBrowser finds advertised simulations.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse searches for simulations until ctx is done. Services are
// aggregated by instance name: a service is emitted once, when first seen.
// The channel is closed when browsing ends.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// Collect browses for timeout and returns the services found, sorted by
// instance name.
func Collect(ctx context.Context, b *MDNSBrowser, timeout time.Duration) ([]*Service, error) {
	if timeout <= 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var services []*Service
	for svc := range found {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].InstanceName < services[j].InstanceName
	})
	return services, nil
}

// entryToService converts a zeroconf entry. Entries without the required
// TXT records belong to something else and yield nil.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	info.Port = entry.Port

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		ServiceInfo:  *info,
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Addresses:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the addresses of entry from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ Advertiser = (*MDNSAdvertiser)(nil)
