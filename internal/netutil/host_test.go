package netutil

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	hostname  string
	hosts     map[string][]string
	ifaces    []net.Addr
	lookupErr error
}

func (f fakeResolver) Hostname() (string, error) { return f.hostname, nil }

func (f fakeResolver) LookupHost(h string) ([]string, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.hosts[h], nil
}

func (f fakeResolver) InterfaceAddrs() ([]net.Addr, error) { return f.ifaces, nil }

func ipnet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestReachableHostExplicit(t *testing.T) {
	r := fakeResolver{hostname: "box", hosts: map[string][]string{"box": {"10.0.0.5"}}}
	for _, h := range []string{"127.0.0.1", "localhost", "192.168.1.20", "tiles.example.com"} {
		assert.Equal(t, h, ReachableHost(h, r))
	}
}

func TestReachableHostFromHostname(t *testing.T) {
	r := fakeResolver{hostname: "box", hosts: map[string][]string{"box": {"127.0.1.1", "::1", "10.0.0.5"}}}
	assert.Equal(t, "10.0.0.5", ReachableHost("0.0.0.0", r))
	assert.Equal(t, "10.0.0.5", ReachableHost("", r))
	assert.Equal(t, "10.0.0.5", ReachableHost("::", r))
}

func TestReachableHostFromInterfaces(t *testing.T) {
	r := fakeResolver{
		hostname:  "box",
		lookupErr: errors.New("no dns"),
		ifaces: []net.Addr{
			ipnet("127.0.0.1/8"),
			ipnet("169.254.3.4/16"),
			ipnet("fe80::1/64"),
			ipnet("172.16.0.9/12"),
		},
	}
	assert.Equal(t, "172.16.0.9", ReachableHost("0.0.0.0", r))

	r.ifaces = []net.Addr{ipnet("127.0.0.1/8")}
	assert.Equal(t, "127.0.0.1", ReachableHost("0.0.0.0", r))
}
