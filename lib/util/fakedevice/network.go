package fakedevice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
)

// Network routes connections for device addresses like 192.168.1.12:8080
// to local listeners, so that clients can be tested without a real LAN.
// Addresses without a route are refused.
type Network struct {
	mu     sync.Mutex
	routes map[string]string
	dials  map[string]int
	dialer net.Dialer
}

func NewNetwork() *Network {
	return &Network{
		routes: make(map[string]string),
		dials:  make(map[string]int),
	}
}

// Route sends connections for address to target.
func (n *Network) Route(address string, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[address] = target
}

func (n *Network) Unroute(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.routes, address)
}

// Dials returns how often address was dialed.
func (n *Network) Dials(address string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[address]
}

func (n *Network) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	n.mu.Lock()
	n.dials[address]++
	target, ok := n.routes[address]
	n.mu.Unlock()
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: network, Err: fmt.Errorf("%v: %w", address, syscall.ECONNREFUSED)}
	}
	return n.dialer.DialContext(ctx, network, target)
}

// Client returns an HTTP client that dials through the network.
func (n *Network) Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:       n.DialContext,
			DisableKeepAlives: true,
		},
	}
}
