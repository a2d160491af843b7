package config

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// ChannelMap returns the hwmon attribute configured for each channel key.
func (h HwmonConfig) ChannelMap() map[string]string {
	out := make(map[string]string, len(h.Channels))
	for k, v := range h.Channels {
		out[k] = v
	}

	return out
}

// ChannelMap returns the NVML fan index configured for each channel key.
func (n NVMLConfig) ChannelMap() map[string]int {
	out := make(map[string]int, len(n.Channels))
	for k, v := range n.Channels {
		out[k] = v
	}

	return out
}
