package message

import (
	"encoding/json"

	"github.com/telemetry-lab/magpie/pkg/domain/types"
)

// Type identifies the kind of a protocol message
type Type string

// Message types sent from client to server
const (
	TypeConnection   Type = "connection"
	TypeStartSession Type = "start_session"
	TypeTrainingData Type = "training_data"
	TypeEndSession   Type = "end_session"
)

// Message types sent from server to client
const (
	TypeAcknowledge    Type = "acknowledge"
	TypeSessionStarted Type = "session_started"
	TypeDataReceived   Type = "data_received"
	TypeSessionEnded   Type = "session_ended"
	TypeError          Type = "error"
)

// Request represents a message sent from client to server
type Request struct {
	Type      Type              `json:"type"`
	Status    string            `json:"status,omitempty"`
	User      json.RawMessage   `json:"user,omitempty"`
	SessionID types.SessionID   `json:"session_id,omitempty"`
	Data      []json.RawMessage `json:"data,omitempty"`
}

// Response represents a message sent from server to client
type Response struct {
	Type       Type            `json:"type"`
	Message    string          `json:"message,omitempty"`
	SessionID  types.SessionID `json:"session_id,omitempty"`
	DataPoints int             `json:"data_points,omitempty"`
	File       string          `json:"file,omitempty"`
}

// FromBytes parses JSON bytes to Request
func (m *Request) FromBytes(data []byte) error {
	return json.Unmarshal(data, m)
}

// ToBytes converts Response to JSON bytes
func (r *Response) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// IsValidType checks if the request type is one the server handles
func (m *Request) IsValidType() bool {
	switch m.Type {
	case TypeConnection, TypeStartSession, TypeTrainingData, TypeEndSession:
		return true
	default:
		return false
	}
}

// NewAcknowledge creates the greeting sent after a connection message
func NewAcknowledge() *Response {
	return &Response{
		Type:    TypeAcknowledge,
		Message: "Connection established",
	}
}

// NewSessionStarted creates a session start confirmation
func NewSessionStarted(id types.SessionID) *Response {
	return &Response{
		Type:      TypeSessionStarted,
		SessionID: id,
	}
}

// NewDataReceived creates a data receipt confirmation. count is the
// number of data points accepted from the triggering batch.
func NewDataReceived(id types.SessionID, count int) *Response {
	return &Response{
		Type:       TypeDataReceived,
		SessionID:  id,
		DataPoints: count,
	}
}

// NewSessionEnded creates a session end confirmation carrying the path
// of the persisted document
func NewSessionEnded(id types.SessionID, file string) *Response {
	return &Response{
		Type:      TypeSessionEnded,
		SessionID: id,
		File:      file,
	}
}

// NewError creates an error response
func NewError(msg string) *Response {
	return &Response{
		Type:    TypeError,
		Message: msg,
	}
}
