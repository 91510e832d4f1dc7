// Package util provides utility functions for the ClinicPipe application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand; these identifiers are not security material.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GeneratePaymentReference generates a payment-intent reference with "pay_" prefix.
func GeneratePaymentReference() string {
	return GenerateRandomID("pay_", 24)
}

// GenerateNotificationID generates a notification record ID with "ntf_" prefix.
func GenerateNotificationID() string {
	return GenerateRandomID("ntf_", 24)
}
