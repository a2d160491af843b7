// Package bus carries settings-changed notifications between the processes
// that edit ventilator settings and the daemon.
package bus

import (
	"fmt"
	"sort"

	"codeberg.org/mutker/ventilator/internal/errors"
	"github.com/godbus/dbus/v5"
)

// SettingsChanged is the member name of the notification signal.
const SettingsChanged = "SettingsChanged"

// Payload maps preference keys to their new values.
type Payload map[string]any

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Each calls fn for every pair in key order.
func (p Payload) Each(fn func(key string, value any)) {
	for _, k := range p.Keys() {
		fn(k, p[k])
	}
}

// SignalName returns the fully qualified signal name for namespace.
func SignalName(namespace string) string {
	return namespace + "." + SettingsChanged
}

// ObjectPath derives the object path signals are emitted on.
func ObjectPath(namespace string) (dbus.ObjectPath, error) {
	path := []byte{'/'}
	for i := 0; i < len(namespace); i++ {
		if namespace[i] == '.' {
			path = append(path, '/')
			continue
		}
		path = append(path, namespace[i])
	}

	p := dbus.ObjectPath(path)
	if !p.IsValid() {
		return "", errors.New().WithData(ErrInvalidNamespace, namespace)
	}

	return p, nil
}

// decodeBody turns an a{sv} signal body into a Payload. Values whose D-Bus
// type has no preference equivalent are reported in skipped.
func decodeBody(body []interface{}) (Payload, []string, error) {
	errFactory := errors.New()

	if len(body) != 1 {
		return nil, nil, errFactory.WithData(ErrInvalidPayload, fmt.Sprintf("expected 1 argument, got %d", len(body)))
	}

	vars, ok := body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, nil, errFactory.WithData(ErrInvalidPayload, fmt.Sprintf("expected a{sv}, got %T", body[0]))
	}

	payload := make(Payload, len(vars))
	var skipped []string
	for k, v := range vars {
		value, ok := plainValue(v.Value())
		if !ok {
			skipped = append(skipped, k)
			continue
		}
		payload[k] = value
	}
	sort.Strings(skipped)

	return payload, skipped, nil
}

func plainValue(v any) (any, bool) {
	switch x := v.(type) {
	case dbus.Variant:
		return plainValue(x.Value())
	case byte, int16, uint16, int32, uint32, int64, uint64, float64, bool, string, []byte:
		return x, true
	case dbus.ObjectPath:
		return string(x), true
	default:
		return nil, false
	}
}

// encodeBody is the inverse of decodeBody.
func encodeBody(p Payload) map[string]dbus.Variant {
	vars := make(map[string]dbus.Variant, len(p))
	for k, v := range p {
		if i, ok := v.(int); ok {
			v = int64(i)
		}
		vars[k] = dbus.MakeVariant(v)
	}

	return vars
}
