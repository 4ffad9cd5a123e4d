package session

import (
	"crypto/rand"
	"fmt"
)

// generateID creates a short random ticket id: 8 upper-case hex digits,
// 2^32 distinct values.
func generateID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%X", b)
}
