package fixture

import "errors"

var (
	ErrInvalidAddress  = errors.New("fixture: invalid start address")
	ErrUnknownFixture  = errors.New("fixture: unknown fixture")
	ErrNotProfileBased = errors.New("fixture: not a profile-based fixture")
	ErrUnknownMode     = errors.New("fixture: unknown mode")
	ErrUnknownProfile  = errors.New("fixture: unknown profile")
)
