package bus

import (
	"sync"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Connect opens a private connection to the system or session bus.
func Connect(busType string) (*dbus.Conn, error) {
	errFactory := errors.New()

	var (
		conn *dbus.Conn
		err  error
	)
	switch busType {
	case "system":
		conn, err = dbus.ConnectSystemBus()
	case "session":
		conn, err = dbus.ConnectSessionBus()
	default:
		return nil, errFactory.WithData(errors.ErrInvalidBusType, busType)
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrConnect, err)
	}

	return conn, nil
}

// Subscription receives SettingsChanged signals for one namespace.
type Subscription struct {
	conn      *dbus.Conn
	namespace string
	name      string
	signals   chan *dbus.Signal
	payloads  chan Payload
	out       <-chan Payload
	logger    logger.Logger
	done      chan struct{}
	once      sync.Once
}

// Subscribe registers a match rule for namespace's SettingsChanged signal.
// Deliveries are coalesced: a burst arriving while the consumer is busy
// collapses to its last payload.
func Subscribe(conn *dbus.Conn, namespace string, log logger.Logger) (*Subscription, error) {
	errFactory := errors.New()

	if _, err := ObjectPath(namespace); err != nil {
		return nil, err
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(namespace),
		dbus.WithMatchMember(SettingsChanged),
	); err != nil {
		return nil, errFactory.Wrap(ErrSubscribe, err)
	}

	s := newSubscription(namespace, log)
	s.conn = conn
	conn.Signal(s.signals)

	go s.receive()

	log.Debug().Str("signal", s.name).Msg("Subscribed to settings notifications")

	return s, nil
}

func newSubscription(namespace string, log logger.Logger) *Subscription {
	s := &Subscription{
		namespace: namespace,
		name:      SignalName(namespace),
		signals:   make(chan *dbus.Signal, 16),
		payloads:  make(chan Payload),
		logger:    log,
		done:      make(chan struct{}),
	}
	s.out = Coalesce(s.payloads)

	return s
}

// receive runs until Close or until the connection closes signals on its
// own after a disconnect. The signal channel belongs to the connection once
// registered and is never closed here.
func (s *Subscription) receive() {
	defer close(s.payloads)

	for {
		var sig *dbus.Signal
		select {
		case <-s.done:
			return
		case next, ok := <-s.signals:
			if !ok {
				s.logger.Warn().Str("signal", s.name).Msg("Bus connection closed")
				return
			}
			sig = next
		}

		if sig == nil || sig.Name != s.name {
			continue
		}

		payload, skipped, err := decodeBody(sig.Body)
		if err != nil {
			s.logger.Warn().Err(err).Str("sender", sig.Sender).Msg("Ignoring malformed settings notification")
			continue
		}
		if len(skipped) > 0 {
			s.logger.Warn().Strs("keys", skipped).Msg("Ignoring settings with unsupported types")
		}

		select {
		case s.payloads <- payload:
		case <-s.done:
			return
		}
	}
}

// Notifications delivers decoded payloads. The channel is closed after Close.
func (s *Subscription) Notifications() <-chan Payload {
	return s.out
}

// Close removes the match rule and stops delivery.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}

		s.conn.RemoveSignal(s.signals)
		if rerr := s.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(s.namespace),
			dbus.WithMatchMember(SettingsChanged),
		); rerr != nil {
			err = errors.New().Wrap(ErrSubscribe, rerr)
		}
	})

	return err
}

// Post emits a SettingsChanged signal carrying payload.
func Post(conn *dbus.Conn, namespace string, payload Payload) error {
	errFactory := errors.New()

	path, err := ObjectPath(namespace)
	if err != nil {
		return err
	}

	if err := conn.Emit(path, SignalName(namespace), encodeBody(payload)); err != nil {
		return errFactory.Wrap(ErrPost, err)
	}

	return nil
}
