package registry

import "errors"

var (
	// ErrDuplicateID is returned when registering an id that is already live.
	ErrDuplicateID = errors.New("duplicate session id")
	// ErrUnknownSession is returned when an id is not registered.
	ErrUnknownSession = errors.New("unknown session")
)
