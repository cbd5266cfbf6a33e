package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked wherever they appear, at any group depth.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"jwt":           {},
	"passphrase":    {},
	"password":      {},
	"privatekey":    {},
	"secret":        {},
	"token":         {},
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("_", "", "-", "").Replace(normalized)
	_, ok := sensitiveKeys[normalized]
	return ok
}

// MaskField returns an attribute whose value is redacted when key is
// sensitive. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	return redactAttr(slog.String(key, value))
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
