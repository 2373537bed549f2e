package network

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
)

func createNet(name string, cidr string, flags net.Flags) Net {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	ipNet.IP = ip
	return Net{
		IPNet:     *ipNet,
		Interface: net.Interface{Name: name, Flags: flags},
	}
}

var (
	loopback = createNet("lo", "127.0.0.1/8", net.FlagUp|net.FlagLoopback)
	wlan     = createNet("wlan0", "192.168.1.50/24", net.FlagUp|net.FlagBroadcast)
	wlan6    = createNet("wlan0", "fe80::1/64", net.FlagUp|net.FlagBroadcast)
	tunnel   = createNet("tun0", "10.8.0.2/24", net.FlagUp|net.FlagPointToPoint)
	down     = createNet("eth0", "192.168.7.3/24", net.FlagBroadcast)
)

func TestHosts24(t *testing.T) {
	hosts, err := Hosts24(net.ParseIP("192.168.1.50"))
	require.Nil(t, err)
	assert.Len(t, hosts, 253)
	assert.Equal(t, "192.168.1.1", hosts[0])
	assert.Equal(t, "192.168.1.254", hosts[len(hosts)-1])
	assert.NotContains(t, hosts, "192.168.1.50")
	assert.NotContains(t, hosts, "192.168.1.0")
	assert.NotContains(t, hosts, "192.168.1.255")

	seen := make(map[string]bool)
	for _, h := range hosts {
		assert.False(t, seen[h], "duplicate host %v", h)
		seen[h] = true
	}

	_, err = Hosts24(net.ParseIP("fe80::1"))
	assert.NotNil(t, err)
}

func TestSameSubnet(t *testing.T) {
	assert.True(t, SameSubnetString("192.168.1.50", "192.168.1.12"))
	assert.True(t, SameSubnetString("10.0.0.1", "10.0.0.254"))
	assert.False(t, SameSubnetString("192.168.1.50", "192.168.2.12"))
	assert.False(t, SameSubnetString("192.168.1.50", ""))
	assert.False(t, SameSubnetString("garbage", "192.168.1.12"))
	assert.False(t, SameSubnetString("fe80::1", "fe80::2"))
}

func TestLocalIPv4(t *testing.T) {
	ip, ok := LocalIPv4([]Net{loopback, wlan6, tunnel, wlan})
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.50", ip.String())

	ip, ok = LocalIPv4([]Net{loopback, tunnel})
	assert.True(t, ok)
	assert.Equal(t, "10.8.0.2", ip.String())

	_, ok = LocalIPv4([]Net{loopback, wlan6, down})
	assert.False(t, ok)
}

func TestSignature(t *testing.T) {
	a := Signature([]Net{wlan, loopback, tunnel})
	b := Signature([]Net{tunnel, wlan})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Signature([]Net{wlan}))
	assert.Equal(t, "", Signature([]Net{loopback, down}))
}

func TestStaticLocator(t *testing.T) {
	ip, err := StaticLocator{IP: net.ParseIP("192.168.1.50")}.LocalIPv4()
	require.Nil(t, err)
	assert.Equal(t, "192.168.1.50", ip.String())
	_, err = StaticLocator{}.LocalIPv4()
	assert.ErrorIs(t, err, ErrNoAddress)
}
