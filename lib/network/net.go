package network

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// Net is an address on a network interface of this machine.
type Net struct {
	net.IPNet
	Interface net.Interface
}

func (n *Net) IsUp() bool {
	return n.Interface.Flags&net.FlagUp != 0
}

func (n *Net) IsLoopback() bool {
	return n.Interface.Flags&net.FlagLoopback != 0
}

func (n *Net) IsBroadcast() bool {
	return n.Interface.Flags&net.FlagBroadcast != 0
}

// LocalIPv4 picks the address that LAN discovery and routing run on:
// the first IPv4 address of an interface that is up and not a loopback.
// Broadcast-capable interfaces (WiFi, ethernet) win over point-to-point ones.
func LocalIPv4(nets []Net) (net.IP, bool) {
	var fallback net.IP
	for i := range nets {
		n := &nets[i]
		ip4 := n.IP.To4()
		if ip4 == nil || !n.IsUp() || n.IsLoopback() || ip4.IsLoopback() {
			continue
		}
		if n.IsBroadcast() {
			return ip4, true
		}
		if fallback == nil {
			fallback = ip4
		}
	}
	return fallback, fallback != nil
}

// SameSubnet reports whether two IPv4 addresses share the same /24.
// Devices are assumed to live on a /24, regardless of the actual netmask.
func SameSubnet(a, b net.IP) bool {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return false
	}
	return a4[0] == b4[0] && a4[1] == b4[1] && a4[2] == b4[2]
}

// SameSubnetString is SameSubnet for textual addresses.
// Unparseable addresses are never in the same subnet.
func SameSubnetString(a, b string) bool {
	return SameSubnet(net.ParseIP(a), net.ParseIP(b))
}

// Hosts24 returns the host addresses .1 to .254 of the /24 that contains self,
// excluding self, in ascending order.
func Hosts24(self net.IP) ([]string, error) {
	self4 := self.To4()
	if self4 == nil {
		return nil, fmt.Errorf("%v is not an IPv4 address", self)
	}
	hosts := make([]string, 0, 253)
	for i := 1; i < 255; i++ {
		ip := net.IPv4(self4[0], self4[1], self4[2], byte(i)).To4()
		if ip.Equal(self4) {
			continue
		}
		hosts = append(hosts, ip.String())
	}
	return hosts, nil
}

// Signature summarizes the interfaces and addresses of a network list.
// Two lists have the same signature if they describe the same attachment,
// irrespective of order.
func Signature(nets []Net) string {
	entries := make([]string, 0, len(nets))
	for i := range nets {
		n := &nets[i]
		if !n.IsUp() || n.IsLoopback() {
			continue
		}
		entries = append(entries, n.Interface.Name+","+n.IPNet.String())
	}
	sort.Strings(entries)
	return strings.Join(entries, " ")
}
