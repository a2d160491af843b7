package fan

import (
	"sync"

	"codeberg.org/mutker/ventilator/internal/errors"
)

// Apply writes value to key inside a session of its own. The session is
// closed on every path, including a failed write. A write error takes
// precedence over a close error.
func Apply(c Controller, key ChannelKey, value int) (err error) {
	session, err := c.Open()
	if err != nil {
		return err
	}

	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return session.SetChannel(key, value)
}

// exclusive tracks whether a backend currently has a session open.
type exclusive struct {
	mu   sync.Mutex
	open bool
}

func (x *exclusive) acquire() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.open {
		return errors.New().New(ErrSessionBusy)
	}
	x.open = true

	return nil
}

func (x *exclusive) release() {
	x.mu.Lock()
	x.open = false
	x.mu.Unlock()
}

// closer makes Close idempotent-with-error for a session.
type closer struct {
	mu     sync.Mutex
	closed bool
}

func (c *closer) markClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New().New(ErrSessionClosed)
	}
	c.closed = true

	return nil
}

func (c *closer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
