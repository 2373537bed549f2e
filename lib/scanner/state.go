package scanner

import (
	"encoding/json"
	"github.com/cyclopcam/connect/lib/automaton"
	"github.com/cyclopcam/connect/lib/probe"
)

const (
	Idle automaton.State = iota + 1
	Busy
	Done
	Error
)

type event int

const (
	eventStart event = iota
	eventFinish
	eventFail
)

var scanAutomaton = automaton.NewAutomaton(automaton.Transitions{
	eventStart:  {At: automaton.States{Idle, Done, Error}, To: Busy},
	eventFinish: {At: automaton.States{Busy}, To: Done},
	eventFail:   {At: automaton.States{Idle, Done, Error}, To: Error},
})

// Candidate is a device that was found during a scan.
type Candidate = probe.Candidate

// State is the progress of a scan.
type State struct {
	Status      automaton.State
	SelfAddress string
	Scanned     int
	Candidates  []Candidate
	Error       string
}

// StatusCode returns the single letter form of a status that the UI expects.
func StatusCode(status automaton.State) string {
	switch status {
	case Idle:
		return "i"
	case Busy:
		return "b"
	case Done:
		return "d"
	case Error:
		return "e"
	}
	return ""
}

func (s State) copy() State {
	s.Candidates = append([]Candidate(nil), s.Candidates...)
	return s
}

type stateJSON struct {
	Error      string      `json:"error"`
	PhoneIP    string      `json:"phoneIP"`
	Status     string      `json:"status"`
	Servers    []Candidate `json:"servers"`
	NumScanned int         `json:"nScanned"`
}

func (s State) MarshalJSON() ([]byte, error) {
	servers := s.Candidates
	if servers == nil {
		servers = []Candidate{}
	}
	return json.Marshal(stateJSON{
		Error:      s.Error,
		PhoneIP:    s.SelfAddress,
		Status:     StatusCode(s.Status),
		Servers:    servers,
		NumScanned: s.Scanned,
	})
}
