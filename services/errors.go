package services

import "errors"

// Shared errors surfaced across services and mapped to HTTP in handlers.
var (
	// Validation and business rules.
	ErrTournamentNameRequired     = errors.New("tournament name is required")
	ErrTournamentInvalidDateRange = errors.New("tournament end date must be after start date")
	ErrTournamentInvalidCapacity  = errors.New("tournament capacity must allow at least two participants")
	ErrTournamentInvalidFee       = errors.New("entry fee and prize pool must not be negative")
	ErrInvalidReportedResult      = errors.New("invalid reported result")
	ErrPasswordTooShort           = errors.New("password is too short")
	ErrInvalidCredentials         = errors.New("invalid email or password")

	// Enrollment.
	ErrEnrollmentClosed = errors.New("tournament enrollment is not open")
	ErrTournamentFull   = errors.New("tournament is full")
	ErrAlreadyEnrolled  = errors.New("user is already enrolled in this tournament")

	// Lifecycle.
	ErrTournamentNotUpcoming = errors.New("tournament has already started or ended")
	ErrTournamentNotActive   = errors.New("tournament is not active")
	ErrMinParticipantsNotMet = errors.New("minimum participant count not met")

	// Consensus and arbitration.
	ErrNotMatchParticipant  = errors.New("reporter is not a participant of this match")
	ErrMatchResolved        = errors.New("match is already resolved")
	ErrByeMatch             = errors.New("bye matches do not accept reports")
	ErrWinnerNotInMatch     = errors.New("winner must be one of the match players")
	ErrNotTournamentCreator = errors.New("only the tournament creator can perform this action")

	// Media.
	ErrUnsupportedBannerType = errors.New("unsupported banner content type")
)
