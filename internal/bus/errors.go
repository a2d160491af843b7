package bus

import "codeberg.org/mutker/ventilator/internal/errors"

const (
	ErrConnect          = errors.ErrorCode("bus_connect_failed")
	ErrSubscribe        = errors.ErrorCode("bus_subscribe_failed")
	ErrPost             = errors.ErrorCode("bus_post_failed")
	ErrInvalidPayload   = errors.ErrorCode("bus_invalid_payload")
	ErrInvalidNamespace = errors.ErrorCode("bus_invalid_namespace")
)
