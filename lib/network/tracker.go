package network

import (
	"context"
	"errors"
	"net"
	"time"
)

// DefaultPollInterval is the rate at which a tracker looks for network changes.
const DefaultPollInterval = 2 * time.Second

var ErrNoAddress = errors.New("no IPv4 network address found")

// Tracker tracks which networks this device is currently connected to.
// One can request to get updates on network changes.
// While there are open requests, the tracker polls for network changes.
// The polling rate can be configured in the constructor of the type.
type Tracker interface {
	// Present returns the networks this device is connected to right now.
	Present() ([]Net, error)

	// Listen returns the present networks and a channel which receives the
	// complete list of networks whenever it changes.
	// The channel is closed once the context is done.
	Listen(ctx context.Context) (present []Net, future <-chan []Net, err error)
}

// Locator tells the local IPv4 address that LAN operations run from.
type Locator interface {
	LocalIPv4() (net.IP, error)
}

// InterfaceFunc lists the networks of this machine.
type InterfaceFunc func() ([]Net, error)

type pollTracker struct {
	interval   time.Duration
	interfaces InterfaceFunc
}

// NewTracker creates a Tracker that polls the system's interfaces.
func NewTracker(interval time.Duration) Tracker {
	return NewTrackerFunc(interval, SystemNets)
}

// NewTrackerFunc creates a Tracker that polls the given function.
func NewTrackerFunc(interval time.Duration, interfaces InterfaceFunc) Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &pollTracker{
		interval:   interval,
		interfaces: interfaces,
	}
}

func (t *pollTracker) Present() ([]Net, error) {
	return t.interfaces()
}

func (t *pollTracker) Listen(ctx context.Context) (present []Net, future <-chan []Net, err error) {
	present, err = t.interfaces()
	if err != nil {
		return
	}
	out := make(chan []Net, 1)
	future = out
	go t.poll(ctx, Signature(present), out)
	return
}

func (t *pollTracker) poll(ctx context.Context, signature string, out chan<- []Net) {
	defer close(out)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		nets, err := t.interfaces()
		if err != nil {
			log.Debugf("Failed to list network interfaces: %v", err)
			continue
		}
		next := Signature(nets)
		if next == signature {
			continue
		}
		log.Infof("Network changed: %q", next)
		signature = next
		select {
		case out <- nets:
		case <-ctx.Done():
			return
		}
	}
}

// SystemNets lists the addresses of all interfaces that are up.
func SystemNets() (nets []Net, err error) {
	ins, err := net.Interfaces()
	if err != nil {
		return
	}
	nets = make([]Net, 0, 8)
	for _, in := range ins {
		if in.Flags&net.FlagUp == 0 {
			// ignore interfaces that are down
			continue
		}
		var inAddrs []net.Addr
		inAddrs, err = in.Addrs()
		if err != nil {
			return
		}
		for _, inAddr := range inAddrs {
			addr, ok := inAddr.(*net.IPNet)
			if !ok {
				continue
			}
			nets = append(nets, Net{
				IPNet:     *addr,
				Interface: in,
			})
		}
	}
	return
}

// TrackerLocator answers LocalIPv4 from the present networks of a Tracker.
type TrackerLocator struct {
	Tracker Tracker
}

func (l TrackerLocator) LocalIPv4() (net.IP, error) {
	nets, err := l.Tracker.Present()
	if err != nil {
		return nil, err
	}
	ip, ok := LocalIPv4(nets)
	if !ok {
		return nil, ErrNoAddress
	}
	return ip, nil
}

// StaticLocator always reports the same address. A nil IP reports ErrNoAddress.
type StaticLocator struct {
	IP net.IP
}

func (l StaticLocator) LocalIPv4() (net.IP, error) {
	if l.IP.To4() == nil {
		return nil, ErrNoAddress
	}
	return l.IP.To4(), nil
}
