package services

import "errors"

var (
	// ErrAgentNotEligible is returned when an agent that cannot receive work
	// polls for a task or acts on one
	ErrAgentNotEligible = errors.New("agent is not eligible for work")

	// ErrStaleClaim is returned when an agent reports against a task it does
	// not currently hold
	ErrStaleClaim = errors.New("agent does not hold this task")

	// ErrLeaseExpired is returned when an agent reports against a claim whose
	// lease has already lapsed
	ErrLeaseExpired = errors.New("task lease has expired")

	// ErrHashListNotReady is returned when a campaign is launched over a
	// hashlist that has not finished ingesting
	ErrHashListNotReady = errors.New("hashlist is not ready")

	// ErrHigherPriorityRunning is returned when a paused campaign cannot
	// resume because higher priority campaigns still hold its project
	ErrHigherPriorityRunning = errors.New("higher priority campaigns are running")

	// ErrInvalidAgentKey is returned when an agent presents a key that does
	// not match its stored digest, or an unknown agent ID
	ErrInvalidAgentKey = errors.New("invalid agent credentials")

	// ErrAgentDisabled is returned when a disabled agent authenticates with
	// an otherwise valid key
	ErrAgentDisabled = errors.New("agent is disabled")
)
