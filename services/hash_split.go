package services

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	PrefixSize = 6
	SuffixSize = 34
	digestSize = PrefixSize + SuffixSize
)

// SplitHash returns the uppercase hex SHA-1 of raw split into the 6-char
// anonymity-set prefix and the 34-char suffix.
func SplitHash(raw string) (prefix, suffix string) {
	sum := sha1.Sum([]byte(raw))
	return SplitDigest(strings.ToUpper(hex.EncodeToString(sum[:])))
}

// SplitDigest splits an already computed 40-char hex digest.
func SplitDigest(digest string) (prefix, suffix string) {
	return digest[:PrefixSize], digest[PrefixSize:]
}

// ValidPrefix normalises prefix to uppercase and reports whether it is
// exactly six hex characters.
func ValidPrefix(prefix string) (string, bool) {
	if len(prefix) != PrefixSize {
		return "", false
	}
	prefix = strings.ToUpper(prefix)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return "", false
		}
	}
	return prefix, true
}
