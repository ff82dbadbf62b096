package recording

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
)

// Document is the persisted form of a completed session
type Document struct {
	SessionID       types.SessionID   `json:"session_id"`
	User            json.RawMessage   `json:"user"`
	StartedAt       time.Time         `json:"session_start_time"`
	EndedAt         time.Time         `json:"session_end_time"`
	DurationMS      int64             `json:"session_duration_ms"`
	TotalDataPoints int               `json:"total_data_points"`
	TrainingData    []json.RawMessage `json:"training_data"`
}

// Encode renders the document as indented JSON. The output always has
// a training_data array, even when no data points were recorded.
func (d *Document) Encode() ([]byte, error) {
	if d.TrainingData == nil {
		d.TrainingData = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode session document", goerr.V("session_id", d.SessionID))
	}
	return data, nil
}
