package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/ventilator/internal/bus"
	"codeberg.org/mutker/ventilator/internal/config"
	"codeberg.org/mutker/ventilator/internal/daemon"
	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"codeberg.org/mutker/ventilator/internal/pid"
	"codeberg.org/mutker/ventilator/internal/power"
	"codeberg.org/mutker/ventilator/internal/prefs"
	"github.com/godbus/dbus/v5"
)

var (
	cfg       *config.Config
	store     *prefs.Store
	conn      *dbus.Conn
	powerConn *dbus.Conn
)

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Level(), logger.IsService())
	logger.Debug().Str("namespace", cfg.Namespace).Str("backend", cfg.Backend).Msg("Config loaded")
}

func main() {
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDFile); err != nil {
		logFatal(err, "Failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	cfg.Watch(func(next *config.Config) {
		logger.SetLogLevel(next.Level())
	})

	loop, settings, port, err := setup(ctx)
	if err != nil {
		cleanup()
		logFatal(errFactory.Wrap(errors.ErrInitApp, err), "Failed to start")
	}

	logger.Info().Str("namespace", cfg.Namespace).Msg("Ventilator started")

	if err := loop.Run(ctx, settings, port); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
	}
	cleanup()
}

func setup(ctx context.Context) (*daemon.Loop, daemon.Settings, power.Port, error) {
	hw, err := daemon.NewController(cfg, logger.Default())
	if err != nil {
		return nil, nil, nil, err
	}

	store, err = daemon.OpenStore(ctx, cfg, logger.Default())
	if err != nil {
		return nil, nil, nil, err
	}

	conn, err = bus.Connect(cfg.Bus.Type)
	if err != nil {
		return nil, nil, nil, err
	}

	settings, err := bus.Subscribe(conn, cfg.Namespace, logger.Default())
	if err != nil {
		return nil, nil, nil, err
	}

	loop := daemon.New(hw, store, logger.Default())

	if !cfg.Power.Enabled {
		logger.Info().Msg("Power notifications disabled")
		return loop, settings, nil, nil
	}

	port, err := registerPower()
	if err != nil {
		// Fan settings still follow preference changes without it.
		logger.Warn().Err(err).Msg("Failed to register for power notifications")
		return loop, settings, nil, nil
	}

	return loop, settings, port, nil
}

// registerPower needs the system bus; logind lives there even when settings
// travel over the session bus.
func registerPower() (power.Port, error) {
	sys := conn
	if cfg.Bus.Type != "system" {
		var err error
		if powerConn, err = bus.Connect("system"); err != nil {
			return nil, err
		}
		sys = powerConn
	}

	port, err := power.RegisterLogind(sys, "ventilatord", logger.Default())
	if err != nil {
		return nil, err
	}

	return port, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close preference store")
		}
	}
	for _, c := range []*dbus.Conn{powerConn, conn} {
		if c != nil {
			c.Close()
		}
	}
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func logFatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
