package identity

import (
	"encoding/json"
	"strings"
)

// nameKeys is the priority order for display-name candidates inside a
// structured analysis payload. Matching is case-insensitive.
var nameKeys = []string{
	"Customer Name",
	"name",
	"full_name",
	"contact_name",
	"client_name",
}

// Resolve extracts a display name from an analysis payload, falling back to
// the formatted phone number. The payload may be a decoded object or a JSON
// string; malformed input never produces an error, only the fallback.
// The second return value reports whether a structured name was found.
func Resolve(payload any, phoneNumber string) (string, bool) {
	fields, ok := payloadFields(payload)
	if !ok {
		return FormatPhoneNumber(phoneNumber), false
	}
	for _, key := range nameKeys {
		value, found := lookupField(fields, key)
		if !found {
			continue
		}
		if name, ok := extractString(value); ok {
			return name, true
		}
	}
	return FormatPhoneNumber(phoneNumber), false
}

func payloadFields(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case map[string]any:
		return v, true
	case string:
		var fields map[string]any
		if err := json.Unmarshal([]byte(v), &fields); err != nil {
			return nil, false
		}
		return fields, true
	default:
		return nil, false
	}
}

func lookupField(fields map[string]any, key string) (any, bool) {
	if v, ok := fields[key]; ok {
		return v, true
	}
	for k, v := range fields {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// extractString accepts the two value shapes providers send: a bare string or
// a {value: string} wrapper. Empty strings are rejected.
func extractString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	case map[string]any:
		if inner, ok := v["value"].(string); ok {
			trimmed := strings.TrimSpace(inner)
			return trimmed, trimmed != ""
		}
	}
	return "", false
}

// FormatPhoneNumber renders a stored phone number for display. E.164 US
// numbers become "+1 (AAA) BBB-CCCC", bare 10-digit numbers become
// "(AAA) BBB-CCCC", anything else is returned verbatim.
func FormatPhoneNumber(phoneNumber string) string {
	digits := digitsOf(phoneNumber)
	switch {
	case strings.HasPrefix(phoneNumber, "+1") && len(digits) == 11:
		return "+1 (" + digits[1:4] + ") " + digits[4:7] + "-" + digits[7:]
	case !strings.HasPrefix(phoneNumber, "+") && len(digits) == 10:
		return "(" + digits[0:3] + ") " + digits[3:6] + "-" + digits[6:]
	default:
		return phoneNumber
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
