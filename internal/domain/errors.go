package domain

import "errors"

// Domain errors
var (
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrPlayerExists         = errors.New("player already exists")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidFormat        = errors.New("invalid tournament format")
	ErrInvalidPairingMode   = errors.New("invalid pairing mode")
	ErrInvalidRating        = errors.New("invalid rating value")
	ErrInvalidTimeControl   = errors.New("invalid time control")
	ErrInvalidResult        = errors.New("invalid match result")
	ErrInvalidCode          = errors.New("invalid tournament code")
	ErrTournamentFull       = errors.New("tournament is full")
	ErrAlreadyJoined        = errors.New("player already joined tournament")
	ErrNotEnoughPlayers     = errors.New("not enough players to start tournament")
	ErrInvalidState         = errors.New("operation not allowed in current tournament state")
	ErrCodeExhausted        = errors.New("could not allocate a unique tournament code")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTournamentNotFound) ||
		errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrNotificationNotFound) ||
		errors.Is(err, ErrInvalidCode)
}

// IsInvalidInputError checks if an error was caused by caller input
func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidPairingMode) ||
		errors.Is(err, ErrInvalidRating) ||
		errors.Is(err, ErrInvalidTimeControl) ||
		errors.Is(err, ErrInvalidResult) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error reports a state conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTournamentFull) ||
		errors.Is(err, ErrPlayerExists) ||
		errors.Is(err, ErrAlreadyJoined) ||
		errors.Is(err, ErrNotEnoughPlayers) ||
		errors.Is(err, ErrInvalidState)
}
