package recording

import (
	"encoding/json"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
)

// Owner represents the user a recording session belongs to. Raw keeps
// the user object exactly as the client sent it so the persisted
// document can reproduce it verbatim.
type Owner struct {
	UID         string
	DisplayName string
	Raw         json.RawMessage
}

// ParseOwner extracts the identity fields from a client-supplied user
// object. An absent object yields a zero Owner, a malformed one is an
// error.
func ParseOwner(raw json.RawMessage) (Owner, error) {
	if len(raw) == 0 {
		return Owner{}, nil
	}

	var fields struct {
		UID         string `json:"uid"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Owner{}, goerr.Wrap(err, "invalid user object", goerr.T(errs.TagValidation))
	}

	return Owner{
		UID:         fields.UID,
		DisplayName: fields.DisplayName,
		Raw:         raw,
	}, nil
}

// AnonymousOwner returns the placeholder identity used when sessions
// are not segregated by user.
func AnonymousOwner() Owner {
	return Owner{
		UID:         "anonymous",
		DisplayName: "anonymous",
		Raw:         json.RawMessage(`{"uid":"anonymous","displayName":"anonymous"}`),
	}
}

// LogValue hides the raw user object from logs
func (o Owner) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("uid", o.UID),
		slog.String("display_name", o.DisplayName),
	)
}
