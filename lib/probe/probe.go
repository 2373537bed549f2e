package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Greeting is what a device answers to a ping.
const Greeting = "I am Cyclops"

const (
	DefaultPort             = 8080
	DefaultProbeTimeout     = 200 * time.Millisecond
	DefaultPreflightTimeout = 5 * time.Second
)

// Config holds the ports and timeouts that are used to talk to devices.
type Config struct {
	Port             int
	ProbeTimeout     time.Duration
	PreflightTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Port:             DefaultPort,
		ProbeTimeout:     DefaultProbeTimeout,
		PreflightTimeout: DefaultPreflightTimeout,
	}
}

// Candidate is a device that answered a ping during a scan.
// The public key is only a claim until the device is verified.
type Candidate struct {
	Address   string `json:"ip"`
	Hostname  string `json:"hostname"`
	PublicKey string `json:"publicKey"`
}

type pingResponse struct {
	Greeting  string `json:"greeting"`
	Hostname  string `json:"hostname"`
	PublicKey string `json:"publicKey"`
}

// NewDeviceState tells whether a device has already been set up.
type NewDeviceState int

const (
	DeviceNew NewDeviceState = iota
	DeviceExisting
)

func (s NewDeviceState) String() string {
	switch s {
	case DeviceNew:
		return "new"
	case DeviceExisting:
		return "old"
	}
	return "unknown"
}

// Prober talks to devices over plain HTTP on the local network.
type Prober struct {
	config Config
	client *http.Client
}

// New creates a Prober. A nil client means http.DefaultClient.
// The cookie jar of the client is never used.
// Zero values in the config are replaced with defaults.
func New(config Config, client *http.Client) *Prober {
	defaults := DefaultConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.PreflightTimeout == 0 {
		config.PreflightTimeout = defaults.PreflightTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	// Credentials go in headers only. A device reads a session cookie
	// before X-Session-Cookie, so cookies installed for the UI must not
	// reach it through a shared jar.
	plain := *client
	plain.Jar = nil
	return &Prober{
		config: config,
		client: &plain,
	}
}

func (p *Prober) Config() Config {
	return p.config
}

// Origin returns the LAN origin of a device, e.g. http://192.168.1.12:8080.
func (p *Prober) Origin(address string) string {
	return "http://" + net.JoinHostPort(address, strconv.Itoa(p.config.Port))
}

// Probe pings an address and returns the device that answered, if any.
// Timeouts, refused connections, bad responses and foreign services
// all count as "no device".
func (p *Prober) Probe(ctx context.Context, address string) (candidate Candidate, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ProbeTimeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodGet, p.Origin(address)+"/api/ping", nil)
	if err != nil {
		return
	}
	if resp.Status != http.StatusOK {
		return
	}
	var ping pingResponse
	if err := json.Unmarshal(resp.Body, &ping); err != nil {
		log.Tracef("Ignoring %v: %v", address, err)
		return
	}
	if ping.Greeting != Greeting {
		log.Tracef("Ignoring %v: unexpected greeting %q", address, ping.Greeting)
		return
	}
	log.Debugf("Found device %q at %v", ping.Hostname, address)
	candidate = Candidate{
		Address:   address,
		Hostname:  ping.Hostname,
		PublicKey: ping.PublicKey,
	}
	ok = true
	return
}

// IsNewDevice asks a device whether an administrator has been created.
// A device without one has not been set up yet.
func (p *Prober) IsNewDevice(ctx context.Context, address string) (state NewDeviceState, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.PreflightTimeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodGet, p.Origin(address)+"/api/auth/hasAdmin", nil)
	if err != nil {
		return
	}
	if resp.Status != http.StatusOK {
		err = fmt.Errorf("hasAdmin: %v", resp.BodyOrStatus())
		return
	}
	if strings.TrimSpace(string(resp.Body)) == "true" {
		state = DeviceExisting
	} else {
		state = DeviceNew
	}
	return
}

// ExtractSession returns the value of the session cookie in a Set-Cookie
// header such as "session=abc; Path=/; HttpOnly", or "" if there is none.
func ExtractSession(setCookie string) string {
	first, _, _ := strings.Cut(setCookie, ";")
	name, value, ok := strings.Cut(strings.TrimSpace(first), "=")
	if !ok || name != "session" {
		return ""
	}
	return value
}
