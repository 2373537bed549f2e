package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/automaton"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNotActive     = errors.New("device is not the active device")
)

// ConnectivityError means that a device can be reached neither on the LAN
// nor through the relay.
type ConnectivityError struct {
	ID  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("device %v is unreachable: %v", e.ID, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// Paths over which the active device is reached.
const (
	PathNone automaton.State = iota + 1
	PathLan
	PathRelay
)

func PathName(path automaton.State) string {
	switch path {
	case PathLan:
		return "lan"
	case PathRelay:
		return "relay"
	}
	return "none"
}

type pathEvent int

const (
	eventLan pathEvent = iota
	eventRelay
	eventDrop
)

var pathAutomaton = automaton.NewAutomaton(automaton.Transitions{
	eventLan:   {At: automaton.States{PathNone, PathLan, PathRelay}, To: PathLan},
	eventRelay: {At: automaton.States{PathNone, PathLan, PathRelay}, To: PathRelay},
	eventDrop:  {At: automaton.States{PathLan, PathRelay}, To: PathNone},
})

type Mode int

const (
	// ModeSwitch makes a device the active one.
	ModeSwitch Mode = iota
	// ModeRevalidate checks the path to the active device.
	ModeRevalidate
)

// ParseMode accepts "switch" and "revalidate".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "switch":
		return ModeSwitch, nil
	case "revalidate":
		return ModeRevalidate, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Decision tells the UI where the active device is and which session
// cookie to install for the origin.
// Navigate is false when the UI is already showing the right origin.
type Decision struct {
	Path          automaton.State
	Origin        string
	SessionCookie string
	Navigate      bool
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path          string `json:"path"`
		Origin        string `json:"origin"`
		SessionCookie string `json:"sessionCookie"`
		Navigate      bool   `json:"navigate"`
	}{PathName(d.Path), d.Origin, d.SessionCookie, d.Navigate})
}

// Result is what ConnectAsync delivers.
type Result struct {
	Decision Decision
	Err      error
}
