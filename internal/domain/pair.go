package domain

import (
	"regexp"
	"strings"
)

var pairRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}-[A-Z0-9]{2,10}$`)

// NormalizePair returns the canonical (upper-case, trimmed) form of a
// trading-pair symbol. Pair symbols are case-insensitive.
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// ValidPair reports whether pair, once normalized, looks like "USD-ETH".
func ValidPair(pair string) bool {
	return pairRegex.MatchString(NormalizePair(pair))
}
