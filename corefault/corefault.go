// Package corefault defines the flat error taxonomy shared across the
// cell's workers: transport failures, peer-not-ready, timeouts,
// peer-alarms, protocol violations, cancellation and flow failure.
// Errors are sentinel values, comparable with errors.Is.
package corefault

import "errors"

var (
	// ErrNotReady is returned when a peer's status word lacks Ready=1,
	// Initialized=1, or has Alarm=1, at the start of a handshake.
	ErrNotReady = errors.New("corefault: peer not ready")
	// ErrCommandLost is returned when a peer never asserts Running after
	// a command write, within the configured timeout.
	ErrCommandLost = errors.New("corefault: command lost, peer did not start running")
	// ErrTimeout is returned when a polling wait exceeds its configured
	// limit.
	ErrTimeout = errors.New("corefault: polling timeout")
	// ErrPeerAlarm is returned when Alarm=1 is observed on a peer mid
	// operation.
	ErrPeerAlarm = errors.New("corefault: peer alarm")
	// ErrProtocol is returned for an impossible status combination or a
	// result-ready-without-success-flag condition.
	ErrProtocol = errors.New("corefault: protocol violation")
	// ErrCancelled is returned when a worker's running flag is cleared or
	// an e-stop is triggered while a wait is outstanding.
	ErrCancelled = errors.New("corefault: cancelled")
	// ErrFlowFailure is raised by a flow executor on any sub-step
	// failure; the caller reacts by alarming the motion state machine.
	ErrFlowFailure = errors.New("corefault: flow failure")
)
