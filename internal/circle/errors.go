package circle

import "errors"

// Every failure of a circle operation is a rejected request, never a crash.
// The HTTP layer maps these onto status codes.
var (
	ErrInvalidInput = errors.New("circle: invalid input")
	ErrNotFound     = errors.New("circle: not found")

	ErrAlreadyMember  = errors.New("circle: user is already a member")
	ErrCircleFull     = errors.New("circle: member limit reached")
	ErrAlreadyPaid    = errors.New("circle: contribution already paid")
	ErrAlreadySettled = errors.New("circle: contribution already settled")
	ErrAmountMismatch = errors.New("circle: amount does not match circle contribution")

	ErrCircleNotActive = errors.New("circle: circle is not active")
	ErrCycleIncomplete = errors.New("circle: current cycle has unpaid contributions")
	ErrRotationLocked  = errors.New("circle: rotation is locked once cycles have started")

	ErrCodeExhausted = errors.New("circle: could not allocate a unique join code")
)
