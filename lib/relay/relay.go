// Package relay describes the cloud relay through which a device can be
// reached when it is not on the same network as the client.
package relay

import (
	"context"
	"fmt"
	"github.com/cyclopcam/connect/lib/device"
	"net"
	"strconv"
	"time"
)

const (
	DefaultProxyHost    = "proxy-cpt.cyclopcam.org"
	DefaultProxyPort    = 8083
	DefaultOriginDomain = "p.cyclopcam.org"
	DefaultDialTimeout  = 3 * time.Second
)

type Config struct {
	ProxyHost    string
	ProxyPort    int
	OriginDomain string
	DialTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProxyHost:    DefaultProxyHost,
		ProxyPort:    DefaultProxyPort,
		OriginDomain: DefaultOriginDomain,
		DialTimeout:  DefaultDialTimeout,
	}
}

// Origin returns the relay origin of a device, https://<short id>.<domain>.
// The id is the base64 public key of the device.
func (c Config) Origin(id string) (string, error) {
	short, err := device.ShortIDOf(id)
	if err != nil {
		return "", fmt.Errorf("invalid device id: %w", err)
	}
	return "https://" + short + "." + c.OriginDomain, nil
}

// ProxyAddress returns host:port of the relay proxy.
func (c Config) ProxyAddress() string {
	return net.JoinHostPort(c.ProxyHost, strconv.Itoa(c.ProxyPort))
}

// DialFunc has the signature of net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network string, address string) (net.Conn, error)

// Checker tests whether the relay proxy can be reached.
type Checker struct {
	config Config
	dial   DialFunc
}

// NewChecker creates a Checker. A nil dial uses a net.Dialer.
func NewChecker(config Config, dial DialFunc) *Checker {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	return &Checker{
		config: config,
		dial:   dial,
	}
}

func (c *Checker) Config() Config {
	return c.config
}

// Reachable opens and closes a single TCP connection to the proxy.
func (c *Checker) Reachable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	conn, err := c.dial(ctx, "tcp", c.config.ProxyAddress())
	if err != nil {
		log.Debugf("Relay proxy %v unreachable: %v", c.config.ProxyAddress(), err)
		return err
	}
	return conn.Close()
}
