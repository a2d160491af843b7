// Package prefs is the machine-wide preference store shared by the daemon
// and the tools that edit its settings.
package prefs

import "context"

// KeyMaxHDDRPM holds the maximum HDD fan speed in RPM.
const KeyMaxHDDRPM = "MaxHDDRPM"

// AnyUser scopes a preference to every user on the host.
const AnyUser = "any"

// Source reads and writes preferences for one Scope.
type Source interface {
	// Read returns the stored value for key. ok is false when the key was
	// never configured; that is not an error.
	Read(ctx context.Context, key string) (value any, ok bool, err error)

	// ReadInt reads key as an integer. Non-numeric values fail with
	// ErrInvalidValue.
	ReadInt(ctx context.Context, key string) (value int, ok bool, err error)

	// Write persists key. The write is durable when Write returns.
	Write(ctx context.Context, key string, value any) error

	// Sync flushes pending state to the main database file.
	Sync(ctx context.Context) error

	// All returns every key in the scope.
	All(ctx context.Context) (map[string]any, error)

	Close() error
}

// Scope identifies whose preferences are addressed.
type Scope struct {
	Domain string
	User   string
	Host   string
}
