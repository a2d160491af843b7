package power

import (
	"sync"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"

	inhibitWhy = "Re-applying fan settings across sleep"
)

// Logind is a Port backed by systemd-logind. Sleep is gated by a delay
// inhibitor lock: logind announces PrepareForSleep(true) and waits until the
// lock is released (or its InhibitDelayMaxSec passes). Releasing the lock
// is the acknowledgment. After wake a fresh lock is taken for the next cycle.
type Logind struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	out     chan Message
	logger  logger.Logger

	inhibit func() (int, error)
	release func(fd int) error

	mu      sync.Mutex
	lock    int
	pending map[Token]int
	next    Token
	done    chan struct{}
	once    sync.Once
}

// RegisterLogind subscribes to PrepareForSleep on conn and takes the first
// inhibitor lock. who names the application in `systemd-inhibit --list`.
func RegisterLogind(conn *dbus.Conn, who string, log logger.Logger) (*Logind, error) {
	errFactory := errors.New()

	obj := conn.Object(logindDest, logindPath)
	inhibit := func() (int, error) {
		var fd dbus.UnixFD
		err := obj.Call(logindInterface+".Inhibit", 0, "sleep", who, inhibitWhy, "delay").Store(&fd)
		if err != nil {
			return -1, err
		}
		return int(fd), nil
	}

	l := newLogind(inhibit, unix.Close, log)
	l.conn = conn

	if err := l.acquire(); err != nil {
		return nil, errFactory.Wrap(ErrRegister, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(prepareForSleep),
	); err != nil {
		l.releaseAll()
		return nil, errFactory.Wrap(ErrRegister, err)
	}

	conn.Signal(l.signals)
	go l.receive()

	log.Debug().Str("who", who).Msg("Registered for logind sleep notifications")

	return l, nil
}

func newLogind(inhibit func() (int, error), release func(int) error, log logger.Logger) *Logind {
	return &Logind{
		signals: make(chan *dbus.Signal, 16),
		out:     make(chan Message, 16),
		logger:  log,
		inhibit: inhibit,
		release: release,
		lock:    -1,
		pending: make(map[Token]int),
		done:    make(chan struct{}),
	}
}

// receive runs until Close or until the connection closes signals on its
// own after a disconnect. The signal channel belongs to the connection once
// registered and is never closed here.
func (l *Logind) receive() {
	defer close(l.out)

	for {
		var sig *dbus.Signal
		select {
		case <-l.done:
			return
		case next, ok := <-l.signals:
			if !ok {
				l.logger.Warn().Msg("Bus connection closed, no further power notifications")
				return
			}
			sig = next
		}

		msg, ok := l.translate(sig)
		if !ok {
			continue
		}
		select {
		case l.out <- msg:
		case <-l.done:
			// Nobody will acknowledge any more; let the OS go ahead.
			if msg.Kind.Gating() {
				_ = l.AllowPowerChange(msg.Token)
			}
			return
		}
	}
}

// translate maps a logind signal to a Message, moving the held lock into
// the pending set on sleep and re-taking it on wake.
func (l *Logind) translate(sig *dbus.Signal) (Message, bool) {
	if sig == nil || sig.Name != logindInterface+"."+prepareForSleep || len(sig.Body) != 1 {
		return Message{}, false
	}
	start, ok := sig.Body[0].(bool)
	if !ok {
		return Message{}, false
	}

	if !start {
		if err := l.acquire(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to take sleep inhibitor lock after wake")
		}
		return Message{Kind: PoweredOn}, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	token := l.next
	l.pending[token] = l.lock
	l.lock = -1

	return Message{Kind: WillSleep, Token: token}, true
}

func (l *Logind) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock >= 0 {
		return nil
	}
	select {
	case <-l.done:
		return nil
	default:
	}

	fd, err := l.inhibit()
	if err != nil {
		return errors.New().Wrap(ErrInhibit, err)
	}
	l.lock = fd

	return nil
}

func (l *Logind) Messages() <-chan Message {
	return l.out
}

// AllowPowerChange releases the inhibitor lock held for token. A token whose
// lock could not be taken is still a valid acknowledgment.
func (l *Logind) AllowPowerChange(token Token) error {
	errFactory := errors.New()

	l.mu.Lock()
	fd, ok := l.pending[token]
	delete(l.pending, token)
	l.mu.Unlock()

	if !ok {
		return errFactory.WithData(ErrUnknownToken, uint64(token))
	}
	if fd < 0 {
		return nil
	}
	if err := l.release(fd); err != nil {
		return errFactory.Wrap(ErrAcknowledge, err)
	}

	return nil
}

func (l *Logind) releaseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	fds := make([]int, 0, len(l.pending)+1)
	if l.lock >= 0 {
		fds = append(fds, l.lock)
		l.lock = -1
	}
	for token, fd := range l.pending {
		if fd >= 0 {
			fds = append(fds, fd)
		}
		delete(l.pending, token)
	}

	for _, fd := range fds {
		if err := l.release(fd); err != nil {
			l.logger.Debug().Err(err).Int("fd", fd).Msg("Failed to release inhibitor lock")
		}
	}
}

// Close removes the signal subscription and releases every lock, so a
// sleep in progress is never held up by this process.
func (l *Logind) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)

		if l.conn != nil {
			l.conn.RemoveSignal(l.signals)
			if rerr := l.conn.RemoveMatchSignal(
				dbus.WithMatchObjectPath(logindPath),
				dbus.WithMatchInterface(logindInterface),
				dbus.WithMatchMember(prepareForSleep),
			); rerr != nil {
				err = errors.New().Wrap(ErrUnregister, rerr)
			}
		}

		l.releaseAll()
	})

	return err
}
