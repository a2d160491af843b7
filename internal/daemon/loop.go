// Package daemon runs the control loop that keeps the fan target in line
// with the stored preference.
package daemon

import (
	"context"

	"codeberg.org/mutker/ventilator/internal/bus"
	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/fan"
	"codeberg.org/mutker/ventilator/internal/logger"
	"codeberg.org/mutker/ventilator/internal/power"
	"codeberg.org/mutker/ventilator/internal/prefs"
)

// Settings is a stream of settings-changed notifications.
type Settings interface {
	Notifications() <-chan bus.Payload
	Close() error
}

// Loop owns the hardware controller, the preference store and the power
// state. All handlers run on the goroutine that calls Run, one at a time.
type Loop struct {
	hw      fan.Controller
	store   prefs.Source
	channel fan.ChannelKey
	machine power.Machine
	logger  logger.Logger
}

func New(hw fan.Controller, store prefs.Source, log logger.Logger) *Loop {
	return &Loop{
		hw:      hw,
		store:   store,
		channel: fan.ChannelHDDMaxRPM,
		logger:  log,
	}
}

// State returns the current power state.
func (l *Loop) State() power.State {
	return l.machine.State()
}

// Apply reads MaxHDDRPM and writes it to the hardware in a session of its
// own. An unset preference is not an error and touches no hardware; applied
// reports whether a write happened.
func (l *Loop) Apply(ctx context.Context) (applied bool, err error) {
	errFactory := errors.New()

	value, ok, err := l.store.ReadInt(ctx, prefs.KeyMaxHDDRPM)
	if err != nil {
		return false, errFactory.Wrap(errors.ErrApplyFailed, err)
	}
	if !ok {
		return false, nil
	}

	if err := fan.Apply(l.hw, l.channel, value); err != nil {
		return false, errFactory.Wrap(errors.ErrApplyFailed, err)
	}

	l.logger.Info().
		Str("channel", string(l.channel)).
		Int("value", value).
		Msg("Fan settings applied")

	return true, nil
}

// ApplySettings is the best-effort form of Apply used by event handlers:
// failures are logged and the next event retries.
func (l *Loop) ApplySettings(ctx context.Context) {
	applied, err := l.Apply(ctx)
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			l.logger.ErrorWithCode(appErr).Msg("Failed to apply fan settings")
		} else {
			l.logger.Error().Err(err).Msg("Failed to apply fan settings")
		}
		return
	}
	if !applied {
		l.logger.Debug().Str("key", prefs.KeyMaxHDDRPM).Msg("Preference not configured, nothing to apply")
	}
}

// HandleSettingsChanged persists every pair in payload, syncing after each
// write, then applies once. An empty payload changes nothing.
func (l *Loop) HandleSettingsChanged(ctx context.Context, payload bus.Payload) {
	if len(payload) == 0 {
		l.logger.Debug().Msg("Empty settings notification")
		return
	}

	payload.Each(func(key string, value any) {
		if err := l.store.Write(ctx, key, value); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist setting")
			return
		}
		if err := l.store.Sync(ctx); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("Failed to sync preferences")
		}
	})

	l.ApplySettings(ctx)
}

// HandlePowerMessage advances the power state machine. Gating messages are
// acknowledged before it returns; PoweredOn re-applies the settings.
func (l *Loop) HandlePowerMessage(ctx context.Context, port power.Port, msg power.Message) {
	from := l.machine.State()
	action := l.machine.Handle(msg.Kind)

	l.logger.Debug().
		Str("message", msg.Kind.String()).
		Str("from", from.String()).
		Str("to", l.machine.State().String()).
		Msg("Power message")

	switch action {
	case power.ActionAcknowledge:
		if err := port.AllowPowerChange(msg.Token); err != nil {
			l.logger.Error().Err(err).
				Str("message", msg.Kind.String()).
				Uint64("token", uint64(msg.Token)).
				Msg("Failed to acknowledge power change")
		}
	case power.ActionApply:
		l.ApplySettings(ctx)
	case power.ActionNone:
	}
}

// Run applies the stored settings once, then serves settings and power
// messages until ctx is cancelled. Either source may be nil. On return both
// sources have been closed and the loop is Unsubscribed.
func (l *Loop) Run(ctx context.Context, settings Settings, port power.Port) error {
	l.ApplySettings(ctx)

	var (
		settingsCh <-chan bus.Payload
		powerCh    <-chan power.Message
	)
	if settings != nil {
		settingsCh = settings.Notifications()
	}
	if port != nil {
		powerCh = port.Messages()
	}

	for {
		select {
		case <-ctx.Done():
			return l.shutdown(settings, port)

		case payload, ok := <-settingsCh:
			if !ok {
				l.logger.Warn().Msg("Settings notifications stopped")
				settingsCh = nil
				continue
			}
			l.HandleSettingsChanged(ctx, payload)

		case msg, ok := <-powerCh:
			if !ok {
				l.logger.Warn().Msg("Power notifications stopped")
				powerCh = nil
				continue
			}
			l.HandlePowerMessage(ctx, port, msg)
		}
	}
}

func (l *Loop) shutdown(settings Settings, port power.Port) error {
	errFactory := errors.New()
	var firstErr error

	if settings != nil {
		if err := settings.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to unsubscribe from settings notifications")
			firstErr = err
		}
	}

	if port != nil {
		if err := port.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to unregister from power notifications")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	l.machine.Shutdown()
	l.logger.Debug().Str("state", l.machine.State().String()).Msg("Control loop stopped")

	if firstErr != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, firstErr)
	}

	return nil
}
