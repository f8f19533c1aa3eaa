package core

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	guidAlphabet        = "0123456789abcdefghijklmnopqrstuvwxyz"
	guidLength          = 8
	displayLengthSmall  = 4
	displayLengthMedium = 5
	displayLengthLarge  = 6
)

// GenerateGUID creates a short GUID with the provided prefix.
func GenerateGUID(prefix string) (string, error) {
	normalized := strings.TrimSuffix(prefix, "-")

	buf := make([]byte, guidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate guid: %w", err)
	}

	id := make([]byte, guidLength)
	for i := 0; i < guidLength; i++ {
		id[i] = guidAlphabet[int(buf[i])%len(guidAlphabet)]
	}

	return fmt.Sprintf("%s-%s", normalized, string(id)), nil
}

// GetDisplayPrefixLength returns the short GUID length for listing threadCount threads.
func GetDisplayPrefixLength(threadCount int) int {
	if threadCount < 200 {
		return displayLengthSmall
	}
	if threadCount < 2000 {
		return displayLengthMedium
	}
	return displayLengthLarge
}

// GetGUIDPrefix extracts the shortened thread id shown in listings.
func GetGUIDPrefix(guid string, length int) string {
	base := strings.TrimPrefix(guid, "thrd-")
	if length <= 0 {
		return ""
	}
	if length > len(base) {
		length = len(base)
	}
	return base[:length]
}
