package alphabet

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Character classes of a token run.
const (
	ClassLetter = 'L'
	ClassDigit  = 'D'
	ClassSymbol = 'Y'
)

func classOf(r rune) byte {
	switch {
	case r == '_' || unicode.IsLetter(r):
		return ClassLetter
	case unicode.IsDigit(r):
		return ClassDigit
	default:
		return ClassSymbol
	}
}

// Tokens splits s into maximal runs of letters, digits and symbols.
//
//	Tokens("password@123") == []string{"password", "@", "123"}
//
// Underscore counts as a letter. Invalid UTF-8 bytes are symbols.
func Tokens(s string) []string {
	var out []string
	start := 0
	var cur byte
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		c := classOf(r)
		if r == utf8.RuneError && size <= 1 {
			c = ClassSymbol
		}
		if i > 0 && c != cur {
			out = append(out, s[start:i])
			start = i
		}
		cur = c
		i += size
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Class returns the class of the first rune of tok.
func Class(tok string) byte {
	if tok == "" {
		return ClassSymbol
	}
	r, size := utf8.DecodeRuneInString(tok)
	if r == utf8.RuneError && size <= 1 {
		return ClassSymbol
	}
	return classOf(r)
}

// Shape labels every run with its class and byte length,
// e.g. "password@123" becomes "L8Y1D3".
func Shape(s string) string {
	var sb strings.Builder
	for _, tok := range Tokens(s) {
		sb.WriteByte(Class(tok))
		sb.WriteString(strconv.Itoa(len(tok)))
	}
	return sb.String()
}
