// ABOUTME: ULID generation helper using crypto/rand entropy.
// ABOUTME: Centralizes ULID creation so boards, cards, instructions, and runs share one source.
package board

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID using crypto/rand entropy.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), rand.Reader)
}
