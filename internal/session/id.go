package session

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/google/uuid"
)

const maxIDLength = 256

// ErrInvalidID marks session ids rejected by ValidateID.
var ErrInvalidID = errors.New("invalid session id")

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidateID rejects ids that cannot be used as storage keys.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidID)
		}
	}
	return nil
}
