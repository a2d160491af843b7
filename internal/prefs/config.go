package prefs

import (
	"os"

	"codeberg.org/mutker/ventilator/internal/errors"
)

const (
	defaultDirPerm = 0o755
	busyTimeoutMS  = 5000
)

type Config struct {
	DBPath string
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

// MachineScope returns the any-user, current-host scope for domain.
func MachineScope(domain string) (Scope, error) {
	host, err := os.Hostname()
	if err != nil {
		return Scope{}, errors.New().Wrap(ErrStorageInit, err)
	}

	return Scope{
		Domain: domain,
		User:   AnyUser,
		Host:   host,
	}, nil
}
