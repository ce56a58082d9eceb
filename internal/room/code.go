package room

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

// Room code format: three lowercase segments joined by dashes, xxx-yyyy-zzz.
var roomCodePattern = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz"

// GenerateRoomCode returns a new random room code in the form xxx-yyyy-zzz.
func GenerateRoomCode() string {
	return randomSegment(3) + "-" + randomSegment(4) + "-" + randomSegment(3)
}

func randomSegment(length int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// fall back to the first letter rather than panic.
			b.WriteByte(codeAlphabet[0])
			continue
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}

// ValidRoomCode reports whether code matches the xxx-yyyy-zzz format.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// SanitizeRoomCode lowercases and trims a caller-supplied room code.
func SanitizeRoomCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
