package scanner

import (
	"context"
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/automaton"
	"github.com/cyclopcam/connect/lib/network"
	"golang.org/x/sync/errgroup"
	"sync"
)

const DefaultWorkers = 8

// DiscoveryError means that a scan could not run at all.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	if e.Err == nil || errors.Is(e.Err, network.ErrNoAddress) {
		return "No WiFi address found"
	}
	return fmt.Sprintf("Cannot scan: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Prober checks whether a device answers at an address.
type Prober interface {
	Probe(ctx context.Context, address string) (Candidate, bool)
}

// Scanner sweeps the /24 network of the local address for devices.
// Only one scan runs at a time. Scans can not be cancelled.
type Scanner struct {
	mu        sync.Mutex
	state     State
	automaton automaton.CompiledAutomaton
	err       error
	done      chan struct{}

	prober  Prober
	locator network.Locator
	workers int
}

// New creates a Scanner that probes with the given number of workers.
func New(prober Prober, locator network.Locator, workers int) *Scanner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Scanner{
		prober:  prober,
		locator: locator,
		workers: workers,
	}
	s.state.Status = Idle
	s.automaton = scanAutomaton.Compile(&s.state.Status)
	return s
}

// Start begins a scan in the background.
// It returns false if a scan is already running.
func (s *Scanner) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.automaton.Can(eventStart) {
		return false
	}

	s.state = State{Status: s.state.Status}
	s.err = nil
	done := make(chan struct{})
	s.done = done

	self, err := s.locator.LocalIPv4()
	var hosts []string
	if err == nil {
		hosts, err = network.Hosts24(self)
	}
	if err != nil {
		s.err = &DiscoveryError{Err: err}
		s.state.Error = s.err.Error()
		s.automaton.Transition(eventFail)
		close(done)
		log.Warnf("Cannot scan: %v", err)
		return true
	}

	s.state.SelfAddress = self.String()
	s.automaton.Transition(eventStart)
	log.Infof("Scanning %v hosts from %v with %v workers", len(hosts), self, s.workers)
	go s.run(hosts, done)
	return true
}

func (s *Scanner) run(hosts []string, done chan struct{}) {
	ctx := context.Background()
	var group errgroup.Group
	n := len(hosts)
	for i := 0; i < s.workers; i++ {
		from := i * n / s.workers
		upTo := (i + 1) * n / s.workers
		group.Go(func() error {
			return s.probeRange(ctx, hosts[from:upTo])
		})
	}
	if err := group.Wait(); err != nil {
		log.Errorf("Scan worker failed: %v", err)
	}

	s.mu.Lock()
	s.automaton.Transition(eventFinish)
	found := len(s.state.Candidates)
	s.mu.Unlock()
	close(done)
	log.Infof("Scan done, found %v devices", found)
}

func (s *Scanner) probeRange(ctx context.Context, hosts []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while probing: %v", r)
		}
	}()
	for _, host := range hosts {
		candidate, ok := s.prober.Probe(ctx, host)
		s.mu.Lock()
		s.state.Scanned++
		if ok {
			s.state.Candidates = append(s.state.Candidates, candidate)
		}
		s.mu.Unlock()
	}
	return nil
}

// Snapshot returns a copy of the scan state.
func (s *Scanner) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.copy()
}

// Err returns the reason why the last scan failed to start, or nil.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Candidate looks up a device of the last scan by its public key.
func (s *Scanner) Candidate(publicKey string) (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Candidates {
		if c.PublicKey == publicKey {
			return c, true
		}
	}
	return Candidate{}, false
}

// Inject adds a device that was found by other means, unless it is known.
func (s *Scanner) Inject(candidate Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Candidates {
		if c.PublicKey == candidate.PublicKey {
			return
		}
	}
	s.state.Candidates = append(s.state.Candidates, candidate)
}

// Wait blocks until the current scan is over.
// It returns immediately if no scan was ever started.
func (s *Scanner) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
