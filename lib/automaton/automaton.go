package automaton

import "errors"

var (
	MissingTriggerState  = errors.New("missing definition of triggering state in At")
	MissingTargetState   = errors.New("missing definition of target state in To")
	AmbiguousTransitions = errors.New("ambiguous definition, cannot determine correct transition path")
	BadTransitionKey     = errors.New("transition key not defined in automaton")
	BadTransitionState   = errors.New("transition state for key not defined in automaton")
)

// Transition moves the automaton from any of the states in At to To.
type Transition struct {
	At States
	To State
}

// Transitions maps an event key to the transition that it triggers.
type Transitions map[interface{}]Transition

type Automaton struct {
	Transitions Transitions
}

// CompiledAutomaton is an Automaton that is bound to a state variable.
// It is not safe for concurrent use, the owner of the state must serialize access.
type CompiledAutomaton struct {
	state       *State
	transitions map[interface{}]map[State]State
}

func NewAutomaton(transitions Transitions) Automaton {
	return Automaton{Transitions: transitions}
}

// Compile validates the transitions and binds them to state.
// It panics on a malformed definition, as that is a programming error.
func (automaton Automaton) Compile(state *State) CompiledAutomaton {
	compiled := make(map[interface{}]map[State]State, len(automaton.Transitions))
	for key, transition := range automaton.Transitions {
		if len(transition.At) == 0 {
			panic(MissingTriggerState)
		}
		if transition.To == NoState {
			panic(MissingTargetState)
		}
		targets := make(map[State]State, len(transition.At))
		for _, at := range transition.At {
			if _, has := targets[at]; has {
				panic(AmbiguousTransitions)
			}
			targets[at] = transition.To
		}
		compiled[key] = targets
	}
	return CompiledAutomaton{
		state:       state,
		transitions: compiled,
	}
}

// State returns the current state.
func (automaton CompiledAutomaton) State() State {
	return *automaton.state
}

// Can reports whether the event key is allowed in the current state.
func (automaton CompiledAutomaton) Can(key interface{}) bool {
	sub, ok := automaton.transitions[key]
	if !ok {
		return false
	}
	_, ok = sub[*automaton.state]
	return ok
}

// Transition applies the transition for key and returns the new state.
// The state is left untouched when the transition is not allowed.
func (automaton CompiledAutomaton) Transition(key interface{}) (State, error) {
	sub, ok := automaton.transitions[key]
	if !ok {
		return *automaton.state, BadTransitionKey
	}
	to, ok := sub[*automaton.state]
	if !ok {
		return *automaton.state, BadTransitionState
	}
	*automaton.state = to
	return to, nil
}
