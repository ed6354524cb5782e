package skanctl

import "errors"

var (
	// ErrRequest indicates the request could not be built.
	ErrRequest = errors.New("invalid request")
	// ErrUnreachable indicates the server could not be reached.
	ErrUnreachable = errors.New("server unreachable")
	// ErrBadResponse indicates the server answered with an unreadable body.
	ErrBadResponse = errors.New("unreadable response")
	// ErrVerification indicates the ledger does not hold what was submitted.
	ErrVerification = errors.New("verification failed")
	// ErrNoReferences indicates a batch file without references.
	ErrNoReferences = errors.New("no repository references")
)
