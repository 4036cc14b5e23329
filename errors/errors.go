package errors

import "fmt"

var (
	ErrUnauthenticated = fmt.Errorf("no authenticated user")
	ErrForbidden       = fmt.Errorf("user is not a member of the room")
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrConflict        = fmt.Errorf("conflict")
	ErrQueueOverflow   = fmt.Errorf("subscriber queue overflow")
)
