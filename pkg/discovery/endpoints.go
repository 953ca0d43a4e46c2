package discovery

import (
	"context"
	"fmt"
	"net"
)

// Endpoint is a listening part of a simulation.
type Endpoint struct {
	Protocol string
	Addr     net.Addr
}

// AdvertiseEndpoints advertises every TCP endpoint with the device, setup
// and version of base. It returns the advertised instance names. On error
// the endpoints advertised so far are stopped again.
func AdvertiseEndpoints(ctx context.Context, adv Advertiser, base ServiceInfo, endpoints []Endpoint) ([]string, error) {
	var instances []string
	for _, ep := range endpoints {
		tcp, ok := ep.Addr.(*net.TCPAddr)
		if !ok {
			continue
		}

		info := base
		info.Protocol = ep.Protocol
		info.Port = tcp.Port
		if err := adv.Advertise(ctx, &info); err != nil {
			for _, instance := range instances {
				_ = adv.Stop(instance)
			}
			return nil, fmt.Errorf("advertise %s endpoint: %w", ep.Protocol, err)
		}
		instances = append(instances, info.InstanceName())
	}
	return instances, nil
}
