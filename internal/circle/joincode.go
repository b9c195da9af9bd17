package circle

import "crypto/rand"

// Join codes match the original product format: 6 characters drawn from
// uppercase letters and digits, short enough to share over chat.
const (
	joinCodeLength  = 6
	joinCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewJoinCode returns a random 6-character join code.
func NewJoinCode() string {
	buf := make([]byte, joinCodeLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = joinCodeCharset[int(b)%len(joinCodeCharset)]
	}
	return string(buf)
}
