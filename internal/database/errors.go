package database

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint rejected the write, such as
	// a second friend request between the same pair of profiles or an
	// already-registered email.
	ErrDuplicate = errors.New("duplicate row")

	// ErrUnknownTable indicates a table outside the whitelisted set.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownColumn indicates a column not present in the table schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrImmutableColumn indicates an update touching a column that cannot
	// change after creation, such as a profile's username.
	ErrImmutableColumn = errors.New("column is immutable")
)
