package router

import (
	"context"
	"errors"
	"github.com/cyclopcam/connect/lib/automaton"
	"github.com/cyclopcam/connect/lib/device"
	"github.com/cyclopcam/connect/lib/network"
	"github.com/cyclopcam/connect/lib/probe"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/cyclopcam/connect/lib/relay"
	"net/http"
	"sync"
	"time"
)

// DefaultDebounce is how long network changes must settle before the
// active device is revalidated.
const DefaultDebounce = 500 * time.Millisecond

// Devices is the part of the registry that the router needs.
type Devices interface {
	ByID(id string) (registry.Record, bool)
	Any() (registry.Record, bool)
	SetLastUsed(id string) error
	SetField(id string, field string, value string) error
}

// Prober checks a device on the LAN.
type Prober interface {
	Preflight(ctx context.Context, record registry.Record, verifier *device.Verifier, updater probe.SessionUpdater) error
	Origin(address string) string
}

// Checker checks whether the relay can be reached.
type Checker interface {
	Reachable(ctx context.Context) error
}

type Options struct {
	Devices  Devices
	Verifier *device.Verifier
	Prober   Prober
	Relay    relay.Config
	Checker  Checker
	Cookies  CookieInstaller
	Locator  network.Locator
	// ForceRelay skips the LAN, e.g. to test the relay from home.
	ForceRelay bool
	Debounce   time.Duration
	// Notify receives the decisions of revalidations that Watch triggers.
	Notify func(Decision, error)
}

// Router decides whether a device is reached over the LAN or the relay
// and installs the cookies for the chosen origin.
type Router struct {
	options Options

	mu            sync.Mutex
	current       string
	path          automaton.State
	automaton     automaton.CompiledAutomaton
	lastSignature string
	locks         map[string]*sync.Mutex
}

func New(options Options) *Router {
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	r := &Router{
		options: options,
		path:    PathNone,
		locks:   make(map[string]*sync.Mutex),
	}
	r.automaton = pathAutomaton.Compile(&r.path)
	return r
}

// Current returns the active device and how it is reached.
func (r *Router) Current() (id string, path automaton.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.path
}

func (r *Router) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// Connect finds the best path to a device.
// With ModeSwitch the device becomes the active one.
// With ModeRevalidate the device must already be active, and the decision
// only asks for navigation if the path changed.
func (r *Router) Connect(ctx context.Context, id string, mode Mode) (decision Decision, err error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	record, ok := r.options.Devices.ByID(id)
	if !ok {
		err = ErrUnknownDevice
		return
	}
	r.mu.Lock()
	justCheck := r.current == id
	path := r.path
	r.mu.Unlock()

	if mode == ModeRevalidate && !justCheck {
		err = ErrNotActive
		return
	}
	if !justCheck {
		if err = r.options.Devices.SetLastUsed(id); err != nil {
			return
		}
	}

	if !r.options.ForceRelay && r.onSameLan(record) {
		decision, err = r.connectLan(ctx, record, justCheck && path.Is(PathLan))
		if err == nil {
			return
		}
		var credentialErr *probe.CredentialError
		if errors.As(err, &credentialErr) {
			log.Warnf("Device %v rejected our credentials: %v", abbrev(id), err)
			return
		}
		log.Infof("Device %v not usable on LAN, trying relay: %v", abbrev(id), err)
	}
	return r.connectRelay(ctx, record, justCheck && path.Is(PathRelay))
}

func (r *Router) onSameLan(record registry.Record) bool {
	if r.options.Locator == nil || record.LanIP == "" {
		return false
	}
	local, err := r.options.Locator.LocalIPv4()
	if err != nil {
		log.Debugf("No local address: %v", err)
		return false
	}
	return network.SameSubnetString(local.String(), record.LanIP)
}

func (r *Router) connectLan(ctx context.Context, record registry.Record, unchanged bool) (decision Decision, err error) {
	err = r.options.Prober.Preflight(ctx, record, r.options.Verifier, r.options.Devices)
	if err != nil {
		return
	}
	// The preflight may have renewed the session.
	if fresh, ok := r.options.Devices.ByID(record.ID); ok {
		record = fresh
	}
	decision = Decision{
		Path:          PathLan,
		Origin:        r.options.Prober.Origin(record.LanIP),
		SessionCookie: record.SessionCookie,
	}
	if unchanged {
		log.Debugf("Device %v still on LAN", abbrev(record.ID))
		return
	}
	err = r.options.Cookies.Install(decision.Origin, []*http.Cookie{
		newCookie(sessionCookie, record.SessionCookie),
	})
	if err != nil {
		return
	}
	decision.Navigate = true
	r.activate(record.ID, eventLan)
	log.Infof("Connected to %v on LAN at %v", abbrev(record.ID), decision.Origin)
	return
}

func (r *Router) connectRelay(ctx context.Context, record registry.Record, unchanged bool) (decision Decision, err error) {
	origin, err := r.options.Relay.Origin(record.ID)
	if err != nil {
		return
	}
	if err = r.options.Checker.Reachable(ctx); err != nil {
		err = &ConnectivityError{ID: record.ID, Err: err}
		return
	}
	decision = Decision{
		Path:          PathRelay,
		Origin:        origin,
		SessionCookie: record.SessionCookie,
	}
	if unchanged {
		log.Debugf("Device %v still on relay", abbrev(record.ID))
		return
	}
	err = r.options.Cookies.Install(origin, []*http.Cookie{
		newCookie(publicKeyCookie, record.ID),
		newCookie(sessionCookie, record.SessionCookie),
	})
	if err != nil {
		return
	}
	decision.Navigate = true
	r.activate(record.ID, eventRelay)
	log.Infof("Connected to %v through relay at %v", abbrev(record.ID), origin)
	return
}

func (r *Router) activate(id string, event pathEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = id
	r.automaton.Transition(event)
}

// ConnectAsync runs Connect in the background.
// The channel receives exactly one result.
func (r *Router) ConnectAsync(ctx context.Context, id string, mode Mode) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		decision, err := r.Connect(ctx, id, mode)
		out <- Result{decision, err}
	}()
	return out
}

// Revalidate checks the path to the active device.
// It does nothing if there is no active device.
func (r *Router) Revalidate(ctx context.Context) (Decision, error) {
	id, _ := r.Current()
	if id == "" {
		return Decision{}, nil
	}
	return r.Connect(ctx, id, ModeRevalidate)
}

// NetworkChanged revalidates the active device if the network signature
// differs from the one seen last. It reports whether it revalidated.
func (r *Router) NetworkChanged(ctx context.Context, signature string) (decision Decision, revalidated bool, err error) {
	r.mu.Lock()
	if signature == r.lastSignature {
		r.mu.Unlock()
		return
	}
	log.Infof("Network changed from %q to %q", r.lastSignature, signature)
	r.lastSignature = signature
	r.mu.Unlock()

	decision, err = r.Revalidate(ctx)
	revalidated = true
	return
}

// DeviceRemoved must be called after a device was removed from the registry.
// If it was the active device, another device becomes active.
func (r *Router) DeviceRemoved(ctx context.Context, id string) (Decision, error) {
	r.mu.Lock()
	if r.current != id {
		r.mu.Unlock()
		return Decision{}, nil
	}
	r.current = ""
	r.automaton.Transition(eventDrop)
	r.mu.Unlock()

	next, ok := r.options.Devices.Any()
	if !ok {
		log.Infof("Removed the last device")
		return Decision{}, nil
	}
	return r.Connect(ctx, next.ID, ModeSwitch)
}

// PrepareLogin returns the LAN origin of a scanned device and overwrites
// any session cookie there, so that a stale session is never sent to it.
func (r *Router) PrepareLogin(candidate probe.Candidate) (origin string, err error) {
	origin = r.options.Prober.Origin(candidate.Address)
	err = r.options.Cookies.Install(origin, []*http.Cookie{newCookie(sessionCookie, "x")})
	return
}

// Watch revalidates the active device when the networks change.
// Bursts of changes within the debounce window cause one revalidation.
// It returns when ctx is done.
func (r *Router) Watch(ctx context.Context, tracker network.Tracker) error {
	present, future, err := tracker.Listen(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.lastSignature = network.Signature(present)
	r.mu.Unlock()

	var timer *time.Timer
	var fire <-chan time.Time
	var latest string
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case nets, ok := <-future:
			if !ok {
				future = nil
				continue
			}
			latest = network.Signature(nets)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(r.options.Debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			decision, revalidated, err := r.NetworkChanged(ctx, latest)
			if revalidated && r.options.Notify != nil {
				r.options.Notify(decision, err)
			}
		}
	}
}

func abbrev(id string) string {
	if short, err := device.ShortIDOf(id); err == nil {
		return short
	}
	return id
}
