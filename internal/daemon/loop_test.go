package daemon

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ventilator/internal/bus"
	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/fan"
	"codeberg.org/mutker/ventilator/internal/logger"
	"codeberg.org/mutker/ventilator/internal/power"
	"codeberg.org/mutker/ventilator/internal/prefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	openErr  error
	writeErr error
}

type fakeSession struct {
	c *fakeController
}

func (c *fakeController) Open() (fan.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "open")
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &fakeSession{c: c}, nil
}

func (s *fakeSession) SetChannel(key fan.ChannelKey, value int) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.calls = append(s.c.calls, fmt.Sprintf("write %s=%d", key, value))
	return s.c.writeErr
}

func (s *fakeSession) Close() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.calls = append(s.c.calls, "close")
	return nil
}

func (c *fakeController) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeController) count(call string) int {
	n := 0
	for _, got := range c.snapshot() {
		if got == call {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu       sync.Mutex
	values   map[string]any
	log      []string
	writeErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]any{}, writeErr: map[string]error{}}
}

func (s *fakeStore) Read(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStore) ReadInt(ctx context.Context, key string) (int, bool, error) {
	v, ok, _ := s.Read(ctx, key)
	if !ok {
		return 0, false, nil
	}
	n, isInt := v.(int)
	if !isInt {
		return 0, false, errors.New().New(prefs.ErrInvalidValue)
	}
	return n, true, nil
}

func (s *fakeStore) Write(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[key]; err != nil {
		return err
	}
	s.values[key] = value
	s.log = append(s.log, "write "+key)
	return nil
}

func (s *fakeStore) Sync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, "sync")
	return nil
}

func (s *fakeStore) All(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

type fakePort struct {
	mu       sync.Mutex
	messages chan power.Message
	acks     []power.Token
	closed   int
}

func newFakePort() *fakePort {
	return &fakePort{messages: make(chan power.Message, 8)}
}

func (p *fakePort) Messages() <-chan power.Message { return p.messages }

func (p *fakePort) AllowPowerChange(token power.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, token)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePort) ackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.acks)
}

type fakeSettings struct {
	ch     chan bus.Payload
	closed int
}

func (s *fakeSettings) Notifications() <-chan bus.Payload { return s.ch }
func (s *fakeSettings) Close() error {
	s.closed++
	return nil
}

func newLoop(t *testing.T) (*Loop, *fakeController, *fakeStore) {
	t.Helper()
	hw := &fakeController{}
	store := newFakeStore()
	return New(hw, store, logger.Nop()), hw, store
}

var writeMax = "write " + string(fan.ChannelHDDMaxRPM)

func TestApplySettingsWritesInsideSession(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 5400

	l.ApplySettings(context.Background())

	assert.Equal(t, []string{"open", writeMax + "=5400", "close"}, hw.snapshot())
}

func TestApplySettingsUnsetTouchesNoHardware(t *testing.T) {
	l, hw, _ := newLoop(t)

	applied, err := l.Apply(context.Background())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, hw.snapshot())
}

func TestApplySettingsIsIdempotent(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 3000

	l.ApplySettings(context.Background())
	l.ApplySettings(context.Background())

	assert.Equal(t, 2, hw.count(writeMax+"=3000"))
	assert.Equal(t, hw.count("open"), hw.count("close"))
}

func TestApplySettingsConnectionFailure(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 3000
	hw.openErr = errors.New().New(fan.ErrConnection)

	applied, err := l.Apply(context.Background())
	require.Error(t, err)
	assert.False(t, applied)
	assert.True(t, errors.HasCode(err, errors.ErrApplyFailed))
	assert.True(t, errors.HasCode(err, fan.ErrConnection))
	assert.Equal(t, []string{"open"}, hw.snapshot())

	// Logged only.
	l.ApplySettings(context.Background())
}

func TestApplySettingsWriteFailureStillCloses(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 3000
	hw.writeErr = errors.New().New(fan.ErrWrite)

	_, err := l.Apply(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrWrite))
	assert.Equal(t, []string{"open", writeMax + "=3000", "close"}, hw.snapshot())
}

func TestApplySettingsInvalidStoredValue(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = "fast"

	_, err := l.Apply(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, prefs.ErrInvalidValue))
	assert.Empty(t, hw.snapshot())
}

func TestHandleSettingsChangedPersistsAllAndAppliesOnce(t *testing.T) {
	l, hw, store := newLoop(t)

	l.HandleSettingsChanged(context.Background(), bus.Payload{
		prefs.KeyMaxHDDRPM: 5400,
		"OtherKey":         "x",
	})

	assert.Equal(t, 5400, store.values[prefs.KeyMaxHDDRPM])
	assert.Equal(t, "x", store.values["OtherKey"])
	assert.Equal(t, []string{"write " + prefs.KeyMaxHDDRPM, "sync", "write OtherKey", "sync"}, store.log)
	assert.Equal(t, []string{"open", writeMax + "=5400", "close"}, hw.snapshot())
}

func TestHandleSettingsChangedUnrelatedKeyReapplies(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 2000

	l.HandleSettingsChanged(context.Background(), bus.Payload{"OtherKey": true})

	assert.Equal(t, []string{"open", writeMax + "=2000", "close"}, hw.snapshot())
}

func TestHandleSettingsChangedEmptyPayload(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 2000

	l.HandleSettingsChanged(context.Background(), bus.Payload{})

	assert.Empty(t, store.log)
	assert.Empty(t, hw.snapshot())
}

func TestHandleSettingsChangedContinuesPastFailedWrite(t *testing.T) {
	l, hw, store := newLoop(t)
	store.writeErr["Broken"] = errors.New().New(prefs.ErrStorageAccess)

	l.HandleSettingsChanged(context.Background(), bus.Payload{
		"Broken":           1,
		prefs.KeyMaxHDDRPM: 4000,
	})

	assert.Equal(t, 4000, store.values[prefs.KeyMaxHDDRPM])
	assert.NotContains(t, store.values, "Broken")
	assert.Equal(t, 1, hw.count(writeMax+"=4000"))
}

func TestHandlePowerMessageAcknowledgesGating(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 2000
	port := newFakePort()
	ctx := context.Background()

	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.CanSleepQuery, Token: 1})
	assert.Equal(t, []power.Token{1}, port.acks)
	assert.Equal(t, power.Running, l.State())

	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.WillSleep, Token: 2})
	assert.Equal(t, []power.Token{1, 2}, port.acks)
	assert.Equal(t, power.SleepPending, l.State())

	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.SystemSleeping})
	assert.Len(t, port.acks, 2)
	assert.Equal(t, power.Asleep, l.State())

	assert.Empty(t, hw.snapshot())
}

func TestHandlePowerMessagePoweredOnApplies(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 2000
	port := newFakePort()
	ctx := context.Background()

	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.WillSleep, Token: 7})
	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.SystemSleeping})
	l.HandlePowerMessage(ctx, port, power.Message{Kind: power.PoweredOn})

	assert.Equal(t, power.Running, l.State())
	assert.Equal(t, []string{"open", writeMax + "=2000", "close"}, hw.snapshot())
	assert.Equal(t, []power.Token{7}, port.acks)
}

func TestHandlePowerMessageAfterShutdown(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 2000
	port := newFakePort()
	l.machine.Shutdown()

	l.HandlePowerMessage(context.Background(), port, power.Message{Kind: power.WillSleep, Token: 3})
	l.HandlePowerMessage(context.Background(), port, power.Message{Kind: power.PoweredOn})

	assert.Equal(t, []power.Token{3}, port.acks)
	assert.Equal(t, power.Unsubscribed, l.State())
	assert.Empty(t, hw.snapshot())
}

func TestRunServesEventsUntilCancelled(t *testing.T) {
	l, hw, store := newLoop(t)
	store.values[prefs.KeyMaxHDDRPM] = 1000
	settings := &fakeSettings{ch: make(chan bus.Payload, 1)}
	port := newFakePort()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, settings, port) }()

	settings.ch <- bus.Payload{prefs.KeyMaxHDDRPM: 1500}
	require.Eventually(t, func() bool {
		return hw.count(writeMax+"=1500") == 1
	}, time.Second, 5*time.Millisecond)

	port.messages <- power.Message{Kind: power.WillSleep, Token: 9}
	require.Eventually(t, func() bool {
		return port.ackCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 1, hw.count(writeMax+"=1000"), "startup apply")
	assert.Equal(t, hw.count("open"), hw.count("close"))
	assert.Equal(t, 1, settings.closed)
	assert.Equal(t, 1, port.closed)
	assert.Equal(t, power.Unsubscribed, l.State())
}

func TestRunWithoutSources(t *testing.T) {
	l, hw, _ := newLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Run(ctx, nil, nil))
	assert.Empty(t, hw.snapshot())
	assert.Equal(t, power.Unsubscribed, l.State())
}

func TestRunSurvivesClosedSettingsStream(t *testing.T) {
	l, _, _ := newLoop(t)
	settings := &fakeSettings{ch: make(chan bus.Payload)}
	close(settings.ch)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Run(ctx, settings, nil))
	assert.Equal(t, 1, settings.closed)
}
