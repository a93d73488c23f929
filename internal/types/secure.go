package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential (Stripe keys, webhook secrets, the Gemini key)
// and refuses to reveal it through fmt, encoding/json or slog.
// Call Unmask only at the point the raw value is handed to a client.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

// GoString keeps %#v from printing the raw value.
func (s SecretString) GoString() string { return redactedPlaceholder }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw secret.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool { return s != "" }
