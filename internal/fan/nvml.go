package fan

import (
	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLibrary abstracts the NVML calls a session needs, for testing.
type nvmlLibrary interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetHandleByIndex(index int) (nvml.Device, nvml.Return)
	DeviceSetFanSpeed(device nvml.Device, fan int, speed int) nvml.Return
}

type nvmlWrapper struct{}

func (nvmlWrapper) Init() nvml.Return {
	return nvml.Init()
}

func (nvmlWrapper) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (nvmlWrapper) DeviceGetHandleByIndex(index int) (nvml.Device, nvml.Return) {
	return nvml.DeviceGetHandleByIndex(index)
}

func (nvmlWrapper) DeviceSetFanSpeed(device nvml.Device, fan int, speed int) nvml.Return {
	return nvml.DeviceSetFanSpeed_v2(device, fan, speed)
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e *nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}

// NVML drives the fans of an NVIDIA GPU. Channels map to fan indices; NVML
// takes the written value as a duty-cycle percentage. With fullSpeedRPM set,
// values are RPM and are scaled to percent against it. Each session is an
// nvml.Init/nvml.Shutdown pair.
type NVML struct {
	lib          nvmlLibrary
	device       int
	channels     map[ChannelKey]int
	fullSpeedRPM int
	logger       logger.Logger
	exclusive
}

func NewNVML(device int, channels map[string]int, fullSpeedRPM int, log logger.Logger) *NVML {
	return newNVML(nvmlWrapper{}, device, channels, fullSpeedRPM, log)
}

func newNVML(lib nvmlLibrary, device int, channels map[string]int, fullSpeedRPM int, log logger.Logger) *NVML {
	m := make(map[ChannelKey]int, len(channels))
	for k, v := range channels {
		m[ChannelKey(k)] = v
	}

	return &NVML{
		lib:          lib,
		device:       device,
		channels:     m,
		fullSpeedRPM: fullSpeedRPM,
		logger:       log,
	}
}

// dutyCycle converts value to the percentage NVML expects, rounding to the
// nearest percent and clamping to 0..100.
func (n *NVML) dutyCycle(value int) int {
	if n.fullSpeedRPM <= 0 {
		return value
	}

	percent := (value*100 + n.fullSpeedRPM/2) / n.fullSpeedRPM
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

type nvmlSession struct {
	owner  *NVML
	device nvml.Device
	closer
}

func (n *NVML) Open() (Session, error) {
	errFactory := errors.New()

	if err := n.acquire(); err != nil {
		return nil, err
	}

	if ret := n.lib.Init(); !IsNVMLSuccess(ret) {
		n.release()
		return nil, errFactory.Wrap(ErrConnection, newNVMLError(ret))
	}

	device, ret := n.lib.DeviceGetHandleByIndex(n.device)
	if !IsNVMLSuccess(ret) {
		if sret := n.lib.Shutdown(); !IsNVMLSuccess(sret) {
			n.logger.Debug().Msgf("Failed to shut down NVML: %s", nvml.ErrorString(sret))
		}
		n.release()
		return nil, errFactory.Wrap(ErrConnection, newNVMLError(ret))
	}

	return &nvmlSession{owner: n, device: device}, nil
}

func (s *nvmlSession) SetChannel(key ChannelKey, value int) error {
	errFactory := errors.New()

	if s.isClosed() {
		return errFactory.New(ErrSessionClosed)
	}

	fanIndex, ok := s.owner.channels[key]
	if !ok {
		return unknownChannel(key)
	}

	speed := s.owner.dutyCycle(value)
	if ret := s.owner.lib.DeviceSetFanSpeed(s.device, fanIndex, speed); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrWrite, newNVMLError(ret))
	}

	s.owner.logger.Debug().
		Str("channel", string(key)).
		Int("fan", fanIndex).
		Int("value", value).
		Int("percent", speed).
		Msg("Channel written")

	return nil
}

func (s *nvmlSession) Close() error {
	if err := s.markClosed(); err != nil {
		return err
	}
	defer s.owner.release()

	if ret := s.owner.lib.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrCloseFailed, newNVMLError(ret))
	}

	return nil
}
