package errs

import (
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrOwnerRequired = errors.New("user identity is required to start a session")
