package domain

import "errors"

var (
	// ErrInvalidArgument marks client input that can never succeed as sent.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSyncFailed marks a push whose atomic unit itself could not run.
	ErrSyncFailed = errors.New("push sync failed")

	ErrNotFound        = errors.New("not found")
	ErrBranchMismatch  = errors.New("record belongs to another branch")
	ErrShiftUnresolved = errors.New("no shift could be resolved for payment")
	ErrTaskNotClaimed  = errors.New("deduction task is not claimed by this worker")

	// Constraint violations reported by the store for a single record.
	ErrMissingReference = errors.New("referenced record does not exist")
	ErrConstraint       = errors.New("constraint violation")
)
