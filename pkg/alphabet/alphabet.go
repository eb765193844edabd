// Package alphabet defines the valid password character set shared by every
// model, the START/END sentinels that wrap a password during training and
// generation, and the letter/digit/symbol run tokenizer.
package alphabet

import "strings"

const (
	// Start marks the beginning of a wrapped password.
	Start byte = 0x01
	// End marks the end of a wrapped password.
	End byte = 0x02
	// Reserved prefixes meta keys stored next to ordinary tokens. It never
	// occurs in a trainable password.
	Reserved byte = 0x03
)

// Printable is every ordinary character a password may be built from:
// digits, ASCII letters and punctuation. Whitespace is not valid.
const Printable = "0123456789" +
	"abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Size is the size of the valid alphabet, including both sentinels.
const Size = len(Printable) + 2

var (
	valid    [256]bool
	StartStr = string([]byte{Start})
	EndStr   = string([]byte{End})
)

func init() {
	for i := 0; i < len(Printable); i++ {
		valid[Printable[i]] = true
	}
}

// IsValid reports whether b is an ordinary password character.
// Sentinels are not valid characters.
func IsValid(b byte) bool {
	return valid[b]
}

// Filter drops every byte that is not an ordinary password character.
func Filter(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if valid[s[i]] {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// ValidLength is len(Filter(s)) without allocating.
func ValidLength(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if valid[s[i]] {
			n++
		}
	}
	return n
}

// HasControl reports whether s contains a sentinel or the reserved marker,
// which would collide with the model's own bookkeeping.
func HasControl(s string) bool {
	return strings.IndexByte(s, Start) >= 0 ||
		strings.IndexByte(s, End) >= 0 ||
		strings.IndexByte(s, Reserved) >= 0
}

// Wrap surrounds s with the START and END sentinels.
func Wrap(s string) string {
	return StartStr + s + EndStr
}

// Unwrap strips the sentinels added by Wrap. Strings that are not wrapped
// are returned unchanged.
func Unwrap(s string) string {
	s = strings.TrimPrefix(s, StartStr)
	return strings.TrimSuffix(s, EndStr)
}

// IsComplete reports whether a partial string already ends with END.
func IsComplete(s string) bool {
	return len(s) > 0 && s[len(s)-1] == End
}
