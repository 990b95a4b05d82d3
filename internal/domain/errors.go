package domain

import "errors"

// Domain errors
var (
	ErrUnknownMachine     = errors.New("machine not found")
	ErrUnknownParticipant = errors.New("participant not found")
	ErrAlreadyQueued      = errors.New("participant already queued or holding this machine")
	ErrCooldownActive     = errors.New("courtesy cooldown active")
	ErrPaused             = errors.New("queues are paused")
	ErrNotYourTurn        = errors.New("not this participant's turn")
	ErrNoActiveOffer      = errors.New("no turn offer pending on this machine")
	ErrNotPlaying         = errors.New("participant is not playing this machine")
	ErrNotQueued          = errors.New("participant is not in this queue")
	ErrInvalidOrder       = errors.New("invalid queue order")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUnknownMachine) || errors.Is(err, ErrUnknownParticipant)
}

// IsConflictError checks if an error is a rejected-precondition type error.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyQueued) ||
		errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrNoActiveOffer) ||
		errors.Is(err, ErrNotPlaying) ||
		errors.Is(err, ErrNotQueued) ||
		errors.Is(err, ErrInvalidOrder)
}
