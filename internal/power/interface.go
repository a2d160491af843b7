// Package power delivers OS power-management messages and carries the
// acknowledgments the OS waits for before it changes power state.
package power

// Kind is the type of a power-management message.
type Kind int

const (
	// PoweredOn is sent after the system wakes.
	PoweredOn Kind = iota + 1
	// WillSleep announces an imminent sleep. It must be acknowledged.
	WillSleep
	// CanSleepQuery asks whether sleep may begin. It must be acknowledged.
	CanSleepQuery
	// SystemSleeping reports that the OS went ahead with a sleep.
	SystemSleeping
)

func (k Kind) String() string {
	switch k {
	case PoweredOn:
		return "powered_on"
	case WillSleep:
		return "will_sleep"
	case CanSleepQuery:
		return "can_sleep_query"
	case SystemSleeping:
		return "system_sleeping"
	default:
		return "unknown"
	}
}

// Gating reports whether the OS waits for an acknowledgment of k.
func (k Kind) Gating() bool {
	return k == WillSleep || k == CanSleepQuery
}

// Token identifies a pending acknowledgment. The zero Token is never issued.
type Token uint64

// Message is one power-management notification.
type Message struct {
	Kind  Kind
	Token Token
}

// Port is a registration with the OS power-management service.
type Port interface {
	// Messages delivers notifications in order. It is closed by Close.
	Messages() <-chan Message

	// AllowPowerChange acknowledges the gating message that carried token.
	AllowPowerChange(token Token) error

	// Close unregisters from the service and releases anything still held.
	Close() error
}
