package cli

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/ventilator/internal/bus"
)

// parseAssignments turns KEY=VALUE arguments into a payload. Later
// assignments to the same key win.
func parseAssignments(args []string) (bus.Payload, error) {
	payload := make(bus.Payload, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected KEY=VALUE", arg)
		}
		payload[key] = parseValue(raw)
	}

	return payload, nil
}

// parseValue picks the narrowest type raw parses as: int, float, bool, then
// string.
func parseValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}

	return raw
}

func formatValue(v any) string {
	switch value := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", value)
	case string:
		return strconv.Quote(value)
	default:
		return fmt.Sprint(value)
	}
}
