package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
	"github.com/telemetry-lab/magpie/pkg/utils/clock"
)

// Naming is the strategy that decides where a session document lives
// and what it is called. Exactly one policy is active per server.
type Naming interface {
	// Kind returns the policy name used in configuration and logs
	Kind() string

	// ResolveOwner validates the client-supplied user object according
	// to the policy's identity requirements
	ResolveOwner(raw json.RawMessage) (recording.Owner, error)

	// ScopeDir returns the directory that file names are unique within
	ScopeDir(base string, owner recording.Owner) string

	// Prefix returns the file name prefix that sequence numbers are
	// scanned and allocated against
	Prefix(ctx context.Context, owner recording.Owner) string

	// FileName composes the final file name from prefix and sequence
	FileName(prefix string, seq int) string
}

// UserNaming stores each user's documents under base/{uid}/ named
// {displayName}_{YYYYMMDD}_{NN}.json. It requires a user object with a
// uid on every session start.
type UserNaming struct{}

func NewUserNaming() *UserNaming {
	return &UserNaming{}
}

func (x *UserNaming) Kind() string {
	return "user"
}

func (x *UserNaming) ResolveOwner(raw json.RawMessage) (recording.Owner, error) {
	if len(raw) == 0 {
		return recording.Owner{}, goerr.Wrap(errs.ErrOwnerRequired, "start_session without user object", goerr.T(errs.TagValidation))
	}

	owner, err := recording.ParseOwner(raw)
	if err != nil {
		return recording.Owner{}, err
	}

	if owner.UID == "" {
		return recording.Owner{}, goerr.Wrap(errs.ErrOwnerRequired, "user object without uid", goerr.T(errs.TagValidation))
	}
	if !safeComponent(owner.UID) {
		return recording.Owner{}, goerr.New("user uid is not filesystem-safe",
			goerr.V("uid", owner.UID), goerr.T(errs.TagValidation))
	}

	return owner, nil
}

func (x *UserNaming) ScopeDir(base string, owner recording.Owner) string {
	return filepath.Join(base, owner.UID)
}

func (x *UserNaming) Prefix(ctx context.Context, owner recording.Owner) string {
	name := sanitizeName(owner.DisplayName)
	date := clock.Now(ctx).Format("20060102")
	return fmt.Sprintf("%s_%s_", name, date)
}

func (x *UserNaming) FileName(prefix string, seq int) string {
	return fmt.Sprintf("%s%02d.json", prefix, seq)
}

// GlobalNaming stores all documents directly under the base directory
// named training_data_{NNN}.json. The user object is optional; an
// absent one is replaced with a placeholder identity.
type GlobalNaming struct{}

func NewGlobalNaming() *GlobalNaming {
	return &GlobalNaming{}
}

func (x *GlobalNaming) Kind() string {
	return "global"
}

func (x *GlobalNaming) ResolveOwner(raw json.RawMessage) (recording.Owner, error) {
	if len(raw) == 0 {
		return recording.AnonymousOwner(), nil
	}
	return recording.ParseOwner(raw)
}

func (x *GlobalNaming) ScopeDir(base string, owner recording.Owner) string {
	return base
}

func (x *GlobalNaming) Prefix(ctx context.Context, owner recording.Owner) string {
	return "training_data_"
}

func (x *GlobalNaming) FileName(prefix string, seq int) string {
	return fmt.Sprintf("%s%03d.json", prefix, seq)
}

// safeComponent reports whether s can be used as a single path element
func safeComponent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// sanitizeName derives a filesystem-safe file name fragment from a
// display name. The mapping is deterministic so repeated sessions of
// the same user scan the same prefix.
func sanitizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '\x00':
			return '_'
		}
		return r
	}, name)

	if mapped == "" || mapped == "." || mapped == ".." {
		return "Unknown"
	}
	return mapped
}
