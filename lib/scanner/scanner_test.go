package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/cyclopcam/connect/lib/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"sync"
	"testing"
	"time"
)

type fakeProber struct {
	mu      sync.Mutex
	probed  map[string]int
	devices map[string]Candidate
	block   chan struct{}
	panicAt string
}

func newFakeProber(devices ...Candidate) *fakeProber {
	p := &fakeProber{
		probed:  make(map[string]int),
		devices: make(map[string]Candidate),
	}
	for _, d := range devices {
		p.devices[d.Address] = d
	}
	return p
}

func (p *fakeProber) Probe(ctx context.Context, address string) (Candidate, bool) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.probed[address]++
	p.mu.Unlock()
	if address == p.panicAt {
		panic("probe exploded")
	}
	c, ok := p.devices[address]
	return c, ok
}

func createScanner(t *testing.T, prober Prober) *Scanner {
	return New(prober, network.StaticLocator{IP: net.ParseIP("192.168.1.50")}, 8)
}

func waitScan(t *testing.T, s *Scanner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Wait(ctx))
}

func TestScanner_ProbesEveryHostOnce(t *testing.T) {
	prober := newFakeProber()
	s := createScanner(t, prober)
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	assert.Equal(t, Done, state.Status)
	assert.Equal(t, 253, state.Scanned)
	assert.Equal(t, "192.168.1.50", state.SelfAddress)
	assert.Len(t, prober.probed, 253)
	for address, count := range prober.probed {
		assert.Equal(t, 1, count, address)
	}
	assert.NotContains(t, prober.probed, "192.168.1.50")
	assert.NotContains(t, prober.probed, "192.168.1.0")
	assert.NotContains(t, prober.probed, "192.168.1.255")
}

func TestScanner_UnevenWorkers(t *testing.T) {
	for _, workers := range []int{1, 3, 7, 300} {
		prober := newFakeProber()
		s := New(prober, network.StaticLocator{IP: net.ParseIP("10.0.0.1")}, workers)
		require.True(t, s.Start())
		waitScan(t, s)
		assert.Equal(t, 253, s.Snapshot().Scanned, "workers %v", workers)
		assert.Len(t, prober.probed, 253, "workers %v", workers)
	}
}

func TestScanner_FindsDevices(t *testing.T) {
	garage := Candidate{Address: "192.168.1.12", Hostname: "garage", PublicKey: "key1"}
	porch := Candidate{Address: "192.168.1.200", Hostname: "porch", PublicKey: "key2"}
	s := createScanner(t, newFakeProber(garage, porch))
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	assert.ElementsMatch(t, []Candidate{garage, porch}, state.Candidates)
	c, ok := s.Candidate("key2")
	require.True(t, ok)
	assert.Equal(t, porch, c)
	_, ok = s.Candidate("key3")
	assert.False(t, ok)
}

func TestScanner_RejectsWhileBusy(t *testing.T) {
	prober := newFakeProber()
	prober.block = make(chan struct{})
	s := createScanner(t, prober)
	require.True(t, s.Start())
	assert.Equal(t, Busy, s.Snapshot().Status)
	assert.False(t, s.Start())

	close(prober.block)
	waitScan(t, s)
	assert.Equal(t, Done, s.Snapshot().Status)
	assert.True(t, s.Start())
	waitScan(t, s)
}

func TestScanner_NoAddress(t *testing.T) {
	s := New(newFakeProber(), network.StaticLocator{}, 8)
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	assert.Equal(t, Error, state.Status)
	assert.Equal(t, "No WiFi address found", state.Error)
	var discoveryErr *DiscoveryError
	assert.ErrorAs(t, s.Err(), &discoveryErr)
	assert.ErrorIs(t, s.Err(), network.ErrNoAddress)
}

type failingLocator struct {
	err error
}

func (l failingLocator) LocalIPv4() (net.IP, error) {
	return nil, l.err
}

func TestScanner_LocatorFails(t *testing.T) {
	cause := errors.New("route ip+net: netlinkrib: permission denied")
	s := New(newFakeProber(), failingLocator{cause}, 8)
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	assert.Equal(t, Error, state.Status)
	assert.Equal(t, "Cannot scan: "+cause.Error(), state.Error)
	assert.ErrorIs(t, s.Err(), cause)
}

func TestScanner_WorkerPanic(t *testing.T) {
	prober := newFakeProber(Candidate{Address: "192.168.1.200", PublicKey: "key"})
	prober.panicAt = "192.168.1.3"
	s := createScanner(t, prober)
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	assert.Equal(t, Done, state.Status)
	assert.Less(t, state.Scanned, 253)
	assert.Len(t, state.Candidates, 1)
}

func TestScanner_SnapshotIsCopy(t *testing.T) {
	s := createScanner(t, newFakeProber(Candidate{Address: "192.168.1.12", PublicKey: "key"}))
	require.True(t, s.Start())
	waitScan(t, s)

	state := s.Snapshot()
	state.Candidates[0].Hostname = "changed"
	state.Candidates = append(state.Candidates, Candidate{})
	assert.Len(t, s.Snapshot().Candidates, 1)
	assert.Equal(t, "", s.Snapshot().Candidates[0].Hostname)
}

func TestScanner_Inject(t *testing.T) {
	s := createScanner(t, newFakeProber())
	c := Candidate{Address: "192.168.1.9", PublicKey: "key"}
	s.Inject(c)
	s.Inject(c)
	assert.Len(t, s.Snapshot().Candidates, 1)
	assert.Nil(t, s.Wait(context.Background()))
}

func TestState_MarshalJSON(t *testing.T) {
	state := State{
		Status:      Busy,
		SelfAddress: "192.168.1.50",
		Scanned:     12,
	}
	data, err := json.Marshal(state)
	require.Nil(t, err)
	assert.JSONEq(t, `{"error":"","phoneIP":"192.168.1.50","status":"b","servers":[],"nScanned":12}`, string(data))
}
