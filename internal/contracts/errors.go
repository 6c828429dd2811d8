package contracts

import "errors"

// ⭐ SSOT: 도메인 에러는 여기서만 정의, errors.Is로 분류
var (
	// ErrNotFound is returned when a game, player or result does not exist
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the caller may not perform the action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFailedPrecondition is returned when the game is not in the required state
	ErrFailedPrecondition = errors.New("failed precondition")

	// ErrAlreadySettled is returned by the store when the LIVE → ENDED transition
	// no longer holds at write time
	ErrAlreadySettled = errors.New("game already settled")
)
