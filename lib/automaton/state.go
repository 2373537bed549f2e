package automaton

// State represents the state of an automaton.
// New automatons should use this type to represent their states.
// A state should not have the value 0. Define states starting from iota + 1.
// The zero value is reserved for detecting an invalid state.
type State int

// NoState represents an invalid, unset state.
var NoState = State(0)

func (s State) Is(state State) bool {
	return s == state
}

func (s State) IsNot(state State) bool {
	return !s.Is(state)
}

type States []State
