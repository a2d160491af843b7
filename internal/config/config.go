package config

import (
	"os"
	"path/filepath"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultNamespace = "org.ventilator.Ventilator"
	DefaultLogLevel  = "warning"
	DefaultBackend   = "hwmon"
	DefaultPrefsPath = "/var/lib/ventilator/preferences.db"

	defaultConfigName = "ventilator"
	defaultConfigDir  = "/etc/ventilator"
	envConfig         = "VENTILATOR_CONFIG"
)

type Config struct {
	Namespace string `mapstructure:"namespace"`
	LogLevel  string `mapstructure:"log_level"`
	Backend   string `mapstructure:"backend"`
	PIDFile   string `mapstructure:"pid_file"`
	Debug     bool   `mapstructure:"debug"`
	Verbose   bool   `mapstructure:"verbose"`

	Hwmon       HwmonConfig       `mapstructure:"hwmon"`
	NVML        NVMLConfig        `mapstructure:"nvml"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Bus         BusConfig         `mapstructure:"bus"`
	Power       PowerConfig       `mapstructure:"power"`

	v *viper.Viper
}

type HwmonConfig struct {
	Root     string            `mapstructure:"root"`
	Chip     string            `mapstructure:"chip"`
	Channels map[string]string `mapstructure:"channels"`
}

type NVMLConfig struct {
	Device   int            `mapstructure:"device"`
	Channels map[string]int `mapstructure:"channels"`
	// FullSpeedRPM converts RPM preferences to NVML's duty-cycle percent.
	// Zero writes values through unchanged.
	FullSpeedRPM int `mapstructure:"full_speed_rpm"`
}

type PreferencesConfig struct {
	Path string `mapstructure:"path"`
}

type BusConfig struct {
	Type string `mapstructure:"type"`
}

type PowerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from defaults, the config file, the environment
// and the given command line arguments, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()
	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("ventilatord", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to the configuration file")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.String("backend", DefaultBackend, "Fan backend (hwmon, nvml)")

	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := readConfigFile(v, *configPath); err != nil {
		return nil, err
	}

	for flagName, key := range map[string]string{
		"debug":     "debug",
		"verbose":   "verbose",
		"log-level": "log_level",
		"backend":   "backend",
	} {
		f := flags.Lookup(flagName)
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	return decode(v)
}

// decode builds a validated Config from v. --debug and --verbose stay in
// force across reloads because their flags remain bound to v.
func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	} else if cfg.Verbose && cfg.LogLevel == DefaultLogLevel {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", DefaultNamespace)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), "ventilatord.pid"))
	v.SetDefault("hwmon.root", "/sys/class/hwmon")
	v.SetDefault("hwmon.chip", "applesmc")
	v.SetDefault("hwmon.channels", map[string]string{})
	v.SetDefault("nvml.device", 0)
	v.SetDefault("nvml.channels", map[string]int{"hdd_fan_rpm_max": 0})
	v.SetDefault("nvml.full_speed_rpm", 0)
	v.SetDefault("preferences.path", DefaultPrefsPath)
	v.SetDefault("bus.type", "system")
	v.SetDefault("power.enabled", true)
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path == "" {
		path = os.Getenv(envConfig)
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	switch c.Backend {
	case "hwmon", "nvml":
	default:
		return errFactory.WithData(errors.ErrInvalidBackend, c.Backend)
	}

	switch c.Bus.Type {
	case "system", "session":
	default:
		return errFactory.WithData(errors.ErrInvalidBusType, c.Bus.Type)
	}

	if c.Namespace == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "namespace must not be empty")
	}

	if c.NVML.FullSpeedRPM < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "nvml.full_speed_rpm must not be negative")
	}

	if c.Preferences.Path == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "preferences.path must not be empty")
	}

	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Watch re-reads the config file whenever it changes and hands the fresh
// configuration to callback. Invalid revisions are logged and skipped.
func (c *Config) Watch(callback func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c.reload(e.Name, callback)
	})
	c.v.WatchConfig()
}

// reload hands callback the configuration viper has just re-read.
func (c *Config) reload(file string, callback func(*Config)) {
	next, err := decode(c.v)
	if err != nil {
		logger.Warn().Err(err).Str("file", file).Msg("Ignoring invalid config")
		return
	}

	logger.Info().Str("file", file).Msg("Config reloaded")
	callback(next)
}
