package utils

import (
	"math"
	"strconv"
	"strings"
)

// FormatWithCommas renders n with thousands separators.
func FormatWithCommas(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatProb prints a probability in scientific notation alongside its
// -log2 strength in bits.
func FormatProb(p float64) string {
	if p <= 0 {
		return "0 (inf bits)"
	}
	return strconv.FormatFloat(p, 'e', 4, 64) + " (" + strconv.FormatFloat(-math.Log2(p), 'f', 2, 64) + " bits)"
}

// Printable escapes control bytes so sentinel-wrapped strings are readable
// in logs.
func Printable(s string) string {
	q := strconv.Quote(s)
	return q[1 : len(q)-1]
}
