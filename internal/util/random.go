package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID in the form "{prefix}{hex}".
// Not cryptographic; used for log correlation only.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the given
// length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}
	return builder.String()
}

// GenerateTurnID generates an ID correlating the log lines of one webhook
// delivery.
func GenerateTurnID() string {
	return GenerateRandomID("t_", 16)
}
