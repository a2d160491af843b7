// Package fan talks to the hardware service that owns fan targets.
//
// A Controller hands out at most one Session at a time. Callers open a
// session, write one or more channels and close it before returning to the
// event loop; Apply does exactly that for a single write.
package fan

// ChannelKey names an addressable control point on the hardware service.
type ChannelKey string

// ChannelHDDMaxRPM is the maximum rotational speed of the HDD fan.
const ChannelHDDMaxRPM ChannelKey = "hdd_fan_rpm_max"

// Controller opens exclusive sessions to the hardware service.
type Controller interface {
	// Open acquires the session. It fails with ErrConnection when the
	// service is unavailable and with ErrSessionBusy when a session is
	// already open.
	Open() (Session, error)
}

// Session is an open connection to the hardware service.
type Session interface {
	// SetChannel writes value to the named channel. It fails with
	// ErrWrite when the key is unknown or the value is rejected.
	SetChannel(key ChannelKey, value int) error

	// Close releases the session. It must be called exactly once per
	// successful Open.
	Close() error
}
