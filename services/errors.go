package services

import "errors"

// Shared service-layer errors, mapped to HTTP statuses in handlers.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation / business rules
	ErrValidationFailed      = errors.New("validation failed")
	ErrPasswordTooShort      = errors.New("password is too short")
	ErrInvalidResult         = errors.New("distance and duration must be positive")
	ErrInvalidBattleDistance = errors.New("battle distance must be positive")
	ErrSameParticipant       = errors.New("battle participants must be distinct users")

	// Battle lifecycle
	ErrNotBattleParticipant = errors.New("user is not a participant of this battle")
	ErrInvalidTransition    = errors.New("action is not allowed in the battle's current status")
	ErrAlreadyInBattle      = errors.New("user is already in a pending or active battle")
	ErrNoOpponentAvailable  = errors.New("no suitable opponent found")

	// Conflicts
	ErrUserEmailConflict    = errors.New("email address is already in use")
	ErrUserUsernameConflict = errors.New("username is already in use")
	ErrCrewNameConflict     = errors.New("crew name is already in use")

	// Authentication / authorization
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")
	ErrCaptainActionForbidden = errors.New("only the crew captain can perform this action")

	// Entity-specific not-found errors (more context than plain ErrNotFound)
	ErrUserNotFound   = errors.New("user not found")
	ErrBattleNotFound = errors.New("battle not found")
	ErrRunNotFound    = errors.New("run not found")
	ErrCrewNotFound   = errors.New("crew not found")

	// Crews
	ErrCrewNameRequired   = errors.New("crew name is required")
	ErrAlreadyInCrew      = errors.New("user is already in a crew")
	ErrAlreadyCaptain     = errors.New("user is already a captain of another crew")
	ErrCrewPrivate        = errors.New("crew is private")
	ErrCrewFull           = errors.New("crew is full")
	ErrNotCrewMember      = errors.New("user is not a member of this crew")
	ErrCaptainCannotLeave = errors.New("captain cannot leave the crew")
)
