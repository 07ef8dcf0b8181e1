// Package netutil works out which address clients should use to reach a
// listener.
package netutil

import (
	"net"
	"os"
)

// Resolver exposes the lookups ReachableHost needs.
type Resolver interface {
	Hostname() (string, error)
	LookupHost(host string) ([]string, error)
	InterfaceAddrs() ([]net.Addr, error)
}

type systemResolver struct{}

func (systemResolver) Hostname() (string, error)                { return os.Hostname() }
func (systemResolver) LookupHost(host string) ([]string, error) { return net.LookupHost(host) }
func (systemResolver) InterfaceAddrs() ([]net.Addr, error)      { return net.InterfaceAddrs() }

// System uses the operating system's resolver and interfaces.
var System Resolver = systemResolver{}

// ReachableHost returns bindHost when it names a specific address or
// hostname, loopback included. Wildcard binds are replaced by the first
// non-loopback address the machine's hostname resolves to, then the first
// non-loopback IPv4 interface address, then 127.0.0.1.
func ReachableHost(bindHost string, r Resolver) string {
	if r == nil {
		r = System
	}
	if !needsDiscovery(bindHost) {
		return bindHost
	}

	if name, err := r.Hostname(); err == nil && name != "" {
		if addrs, err := r.LookupHost(name); err == nil {
			for _, a := range addrs {
				ip := net.ParseIP(a)
				if ip != nil && !ip.IsLoopback() && ip.To4() != nil {
					return ip.String()
				}
			}
		}
	}

	if addrs, err := r.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}

	return "127.0.0.1"
}

func needsDiscovery(host string) bool {
	switch host {
	case "", "0.0.0.0", "::":
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
