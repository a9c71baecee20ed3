package view

import "github.com/fjod/shop_client/internal/domain"

// Phase is the user-visible loading state of the cart screen.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseData
	PhaseError
)

// State carries the phase, the current view and, in PhaseError, the cause.
// The view survives a transition into PhaseError so an optimistic-then-
// rollback flow still has something to render.
type State struct {
	Phase Phase
	View  CartView
	Err   error
}

// Machine derives cart states synchronously, with no I/O. Callers serialize
// transitions the same way they serialize coordinator calls.
type Machine struct {
	state State
}

func NewMachine() *Machine {
	return &Machine{state: State{Phase: PhaseLoading}}
}

func (m *Machine) State() State {
	return m.state
}

// Loading marks the initiating call's visible feedback. The previous view is
// kept so the screen does not blank out.
func (m *Machine) Loading() State {
	m.state.Phase = PhaseLoading
	m.state.Err = nil
	return m.state
}

// Data recomputes the view from scratch and enters PhaseData.
func (m *Machine) Data(entries []domain.CartEntry) State {
	m.state = State{Phase: PhaseData, View: Project(entries)}
	return m.state
}

// Fail enters PhaseError, preserving the last successful view.
func (m *Machine) Fail(err error) State {
	m.state.Phase = PhaseError
	m.state.Err = err
	return m.state
}
