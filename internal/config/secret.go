package config

const redacted = "[redacted]"

// Secret holds a credential that must never be printed or serialized.
// Use Reveal only at the point the value goes on the wire.
type Secret string

func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
