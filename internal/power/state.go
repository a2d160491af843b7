package power

// State is the daemon's view of the system power state.
type State int

const (
	Running State = iota
	SleepPending
	Asleep
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case SleepPending:
		return "sleep_pending"
	case Asleep:
		return "asleep"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Action is what the handler of a message must do.
type Action int

const (
	ActionNone Action = iota
	// ActionAcknowledge allows the pending power change.
	ActionAcknowledge
	// ActionApply re-asserts fan settings.
	ActionApply
)

// Machine tracks State across messages.
type Machine struct {
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Handle advances the machine for kind and returns the action to take.
// Gating messages are acknowledged in every state, including Unsubscribed.
func (m *Machine) Handle(kind Kind) Action {
	if m.state == Unsubscribed {
		if kind.Gating() {
			return ActionAcknowledge
		}
		return ActionNone
	}

	switch kind {
	case PoweredOn:
		m.state = Running
		return ActionApply
	case WillSleep:
		m.state = SleepPending
		return ActionAcknowledge
	case CanSleepQuery:
		return ActionAcknowledge
	case SystemSleeping:
		if m.state == SleepPending {
			m.state = Asleep
		}
		return ActionNone
	default:
		return ActionNone
	}
}

// Shutdown moves the machine to its terminal state.
func (m *Machine) Shutdown() {
	m.state = Unsubscribed
}
