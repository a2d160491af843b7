package daemon

import (
	"context"

	"codeberg.org/mutker/ventilator/internal/config"
	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/fan"
	"codeberg.org/mutker/ventilator/internal/logger"
	"codeberg.org/mutker/ventilator/internal/prefs"
)

// NewController builds the fan backend named by cfg.Backend. hwmon ships
// without a channel mapping; until one is configured every apply fails with
// fan_unknown_channel.
func NewController(cfg *config.Config, log logger.Logger) (fan.Controller, error) {
	switch cfg.Backend {
	case "hwmon":
		channels := cfg.Hwmon.ChannelMap()
		if _, ok := channels[string(fan.ChannelHDDMaxRPM)]; !ok {
			log.Warn().
				Str("channel", string(fan.ChannelHDDMaxRPM)).
				Str("chip", cfg.Hwmon.Chip).
				Msg("No hwmon attribute mapped for channel, set hwmon.channels in the config file")
		}
		return fan.NewHwmon(cfg.Hwmon.Root, cfg.Hwmon.Chip, channels, log), nil
	case "nvml":
		return fan.NewNVML(cfg.NVML.Device, cfg.NVML.ChannelMap(), cfg.NVML.FullSpeedRPM, log), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidBackend, cfg.Backend)
	}
}

// OpenStore opens the machine-wide preference store for cfg.Namespace.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*prefs.Store, error) {
	scope, err := prefs.MachineScope(cfg.Namespace)
	if err != nil {
		return nil, err
	}

	return prefs.NewStore(ctx, prefs.Config{DBPath: cfg.Preferences.Path}, scope, log)
}
