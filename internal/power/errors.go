package power

import "codeberg.org/mutker/ventilator/internal/errors"

const (
	ErrRegister     = errors.ErrorCode("power_register_failed")
	ErrInhibit      = errors.ErrorCode("power_inhibit_failed")
	ErrAcknowledge  = errors.ErrorCode("power_ack_failed")
	ErrUnknownToken = errors.ErrorCode("power_unknown_token")
	ErrUnregister   = errors.ErrorCode("power_unregister_failed")
)
