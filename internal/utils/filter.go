package utils

import (
	"regexp"
	"unicode"
)

// Predicate reports whether a candidate password should be kept.
type Predicate func(string) bool

// All combines predicates. An empty list accepts everything.
func All(preds ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range preds {
			if p != nil && !p(s) {
				return false
			}
		}
		return true
	}
}

// MinLen rejects strings shorter than n bytes.
func MinLen(n int) Predicate {
	return func(s string) bool { return len(s) >= n }
}

// MaxLen rejects strings longer than n bytes. Zero disables the check.
func MaxLen(n int) Predicate {
	return func(s string) bool { return n <= 0 || len(s) <= n }
}

// Matching keeps strings matching the regular expression.
func Matching(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

// IsOnlyNumbers checks if a string consists entirely of numeric digits
func IsOnlyNumbers(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsRepetitive checks for a single character repeated 3+ times, e.g. "aaa".
func IsRepetitive(s string) bool {
	if len(s) <= 2 {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// PolicyFilter builds the predicate used by generation policies: length
// bounds plus optional rejection of all-digit and repetitive candidates.
func PolicyFilter(minLen, maxLen int, allowNumeric, allowRepetitive bool) Predicate {
	preds := []Predicate{MinLen(minLen), MaxLen(maxLen)}
	if !allowNumeric {
		preds = append(preds, func(s string) bool { return !IsOnlyNumbers(s) })
	}
	if !allowRepetitive {
		preds = append(preds, func(s string) bool { return !IsRepetitive(s) })
	}
	return All(preds...)
}
