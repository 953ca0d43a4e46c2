package discovery

import (
	"errors"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of simulated devices.
	ServiceType = "_plankton._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultTTL is the DNS record TTL of advertisements.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default duration of a browse.
	BrowseTimeout = 3 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyDevice   = "device"
	TXTKeyProtocol = "protocol"
	TXTKeySetup    = "setup"
	TXTKeyVersion  = "version"
)

var (
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidName     = errors.New("invalid instance name")
	ErrInvalidPort     = errors.New("invalid port")
	ErrNotFound        = errors.New("service not advertised")
)

// ServiceInfo describes an advertised endpoint.
type ServiceInfo struct {
	// Device is the registry name of the simulated device.
	Device string

	// Protocol is the adapter protocol, or "jsonrpc" for the control server.
	Protocol string

	// Setup is the setup the device runs in.
	Setup string

	// Version is the simulator version.
	Version string

	// Port is the TCP port of the endpoint.
	Port int
}

// InstanceName returns the DNS-SD instance name of the endpoint.
func (i *ServiceInfo) InstanceName() string {
	name := i.Device + "-" + i.Protocol + "-" + strconv.Itoa(i.Port)
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Service is an endpoint found by browsing.
type Service struct {
	ServiceInfo

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Host is the advertised host name.
	Host string

	// Addresses are the IP addresses the service was seen with.
	Addresses []string
}
