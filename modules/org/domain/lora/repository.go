package lora

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/os2mo/mora/pkg/virkning"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrConflict = errors.New("object was registered again since it was read")
)

// ReadParams bound a read on both time axes. Validity restricts which fact
// versions come back. A nil Registered returns only the current
// registration; otherwise every registration overlapping it is returned.
type ReadParams struct {
	Validity   virkning.Interval
	Registered *virkning.Interval
}

func CurrentRegistration(validity virkning.Interval) ReadParams {
	return ReadParams{Validity: validity}
}

func AllRegistrations() ReadParams {
	all := virkning.Always()
	return ReadParams{Validity: virkning.Always(), Registered: &all}
}

// Filter holds search terms keyed by field or value name, for example
// "overordnet", "gyldighed" or "vilkaarligattr". Values of one key are
// alternatives; distinct keys must all match.
type Filter map[string][]string

func (f Filter) Add(key string, values ...string) Filter {
	f[key] = append(f[key], values...)
	return f
}

func (f Filter) Get(key string) string {
	if v := f[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Page limits a search. A zero Limit means unlimited.
type Page struct {
	Start int
	Limit int
}

type Repository interface {
	Fetch(ctx context.Context, kind Kind, ids []uuid.UUID, params ReadParams) ([]Entry, error)
	Search(ctx context.Context, kind Kind, filter Filter, params ReadParams, page Page) ([]uuid.UUID, error)
	Create(ctx context.Context, kind Kind, id uuid.UUID, obj *Object) (uuid.UUID, error)
	// Update writes obj over the stored object. A non-zero ifUnchangedSince
	// makes the write fail with ErrConflict when the newest registration
	// started at a different instant.
	Update(ctx context.Context, kind Kind, id uuid.UUID, obj *Object, ifUnchangedSince time.Time) (uuid.UUID, error)
}
