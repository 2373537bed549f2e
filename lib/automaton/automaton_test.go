package automaton

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

const (
	initial State = iota + 1
	foo
	bar
)

const (
	toFoo = "foo"
	toBar = "bar"
	reset = "reset"
)

func newState() *State {
	state := new(State)
	*state = initial
	return state
}

func compileFunc(transitions Transitions) func() {
	return func() {
		NewAutomaton(transitions).Compile(newState())
	}
}

func TestAutomaton_MissingTriggerState(t *testing.T) {
	assert.PanicsWithError(t, MissingTriggerState.Error(), compileFunc(Transitions{
		toFoo: {To: foo},
	}))
}

func TestAutomaton_MissingTargetState(t *testing.T) {
	assert.PanicsWithError(t, MissingTargetState.Error(), compileFunc(Transitions{
		toFoo: {At: States{initial}},
	}))
}

func TestAutomaton_AmbiguousTransitions(t *testing.T) {
	assert.PanicsWithError(t, AmbiguousTransitions.Error(), compileFunc(Transitions{
		toFoo: {At: States{initial, initial}, To: foo},
	}))
}

func TestAutomaton_Transition(t *testing.T) {
	state := newState()
	a := NewAutomaton(Transitions{
		toFoo: {At: States{initial}, To: foo},
		toBar: {At: States{foo}, To: bar},
		reset: {At: States{foo, bar}, To: initial},
	}).Compile(state)

	assert.True(t, a.Can(toFoo))
	assert.False(t, a.Can(toBar))
	assert.False(t, a.Can("unknown"))

	s, err := a.Transition(toBar)
	assert.ErrorIs(t, err, BadTransitionState)
	assert.Equal(t, initial, s)
	assert.Equal(t, initial, *state)

	s, err = a.Transition(toFoo)
	assert.Nil(t, err)
	assert.Equal(t, foo, s)

	s, err = a.Transition(toBar)
	assert.Nil(t, err)
	assert.Equal(t, bar, a.State())

	_, err = a.Transition("unknown")
	assert.ErrorIs(t, err, BadTransitionKey)

	_, err = a.Transition(reset)
	assert.Nil(t, err)
	assert.True(t, state.Is(initial))
}

func TestState_Is(t *testing.T) {
	assert.True(t, foo.Is(foo))
	assert.True(t, foo.IsNot(bar))
	assert.False(t, foo.IsNot(foo))
}
