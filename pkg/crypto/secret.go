package crypto

// Secret holds a credential (user name or password) in a mutable buffer so it
// can be wiped once a driver configuration has consumed it.
// String never reveals the contents.
type Secret []byte

// NewSecret copies b into a fresh Secret. The caller keeps ownership of b.
func NewSecret(b []byte) Secret {
	if b == nil {
		return nil
	}
	s := make(Secret, len(b))
	copy(s, b)
	return s
}

// SecretFromString returns a Secret holding s.
func SecretFromString(s string) Secret {
	return Secret(s)
}

// Reveal returns the plaintext value.
func (s Secret) Reveal() string {
	return string(s)
}

// IsSet reports whether the secret was supplied at all. An empty, non-nil
// secret (for example an empty password) counts as set.
func (s Secret) IsSet() bool {
	return s != nil
}

// Zero overwrites the buffer in place.
func (s Secret) Zero() {
	clear(s)
}

func (s Secret) String() string {
	if s == nil {
		return ""
	}
	return "[REDACTED]"
}

// ZeroAll wipes every buffer passed in. Nil buffers are skipped.
func ZeroAll(buffers ...[]byte) {
	for _, b := range buffers {
		clear(b)
	}
}
