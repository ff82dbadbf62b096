package types

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ConnID represents a unique identifier of a client connection
type ConnID string

// NewConnID generates a new connection ID
func NewConnID() ConnID {
	return ConnID(gonanoid.Must())
}

func (x ConnID) String() string {
	return string(x)
}
