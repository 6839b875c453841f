package patient

import "strings"

// Identity is a patient's normalized (name, phone) pair, the only fields
// duplicate detection ever compares. An empty Phone means the record
// carries no usable phone at all.
type Identity struct {
	Name  string
	Phone string
}

// HasPhone reports whether the identity carries a phone.
func (id Identity) HasPhone() bool { return id.Phone != "" }

// NormalizeName canonicalizes a name for comparison: surrounding
// whitespace is trimmed and the result lower-cased. Total and idempotent
// for any input.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizePhone canonicalizes a phone the same way. Empty or
// whitespace-only input normalizes to "" (absent). Digits are never
// stripped or reformatted; equality is exact on the normalized text.
func NormalizePhone(phone string) string {
	return strings.ToLower(strings.TrimSpace(phone))
}

// NormalizeIdentity normalizes a raw (name, phone) pair.
func NormalizeIdentity(name, phone string) Identity {
	return Identity{Name: NormalizeName(name), Phone: NormalizePhone(phone)}
}
