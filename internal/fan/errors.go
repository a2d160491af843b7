package fan

import "codeberg.org/mutker/ventilator/internal/errors"

const (
	// Session Errors
	ErrConnection    = errors.ErrorCode("fan_connection_failed")
	ErrSessionBusy   = errors.ErrorCode("fan_session_busy")
	ErrSessionClosed = errors.ErrorCode("fan_session_closed")
	ErrCloseFailed   = errors.ErrorCode("fan_close_failed")

	// Write Errors
	ErrWrite           = errors.ErrorCode("fan_write_failed")
	ErrUnknownChannel  = errors.ErrorCode("fan_unknown_channel")
	ErrReadOnlyChannel = errors.ErrorCode("fan_read_only_channel")
)

func unknownChannel(key ChannelKey) error {
	errFactory := errors.New()
	return errFactory.Wrap(ErrWrite, errFactory.WithData(ErrUnknownChannel, string(key)))
}
