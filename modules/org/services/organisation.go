package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/intl"
)

type Organisation struct {
	Name    string    `json:"name"`
	UserKey string    `json:"user_key"`
	UUID    uuid.UUID `json:"uuid"`
}

func (r *reader) decodeOrganisation(ctx context.Context, id uuid.UUID, obj *lora.Object) (*Organisation, error) {
	attrs, ok, err := r.current(ctx, id, obj, lora.OrganisationProperties)
	if err != nil || !ok {
		return nil, err
	}
	return &Organisation{
		Name:    attrs.Get(lora.KeyOrgName),
		UserKey: attrs.Get(lora.KeyUserKey),
		UUID:    id,
	}, nil
}

func (r *reader) organisation(ctx context.Context, id uuid.UUID) (*Organisation, error) {
	if org, ok := r.orgs[id]; ok {
		return org, nil
	}
	obj, err := r.c.Organisation().Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	var org *Organisation
	if obj != nil {
		if org, err = r.decodeOrganisation(ctx, id, obj); err != nil {
			return nil, err
		}
	}
	r.orgs[id] = org
	return org, nil
}

func (s *OrgService) GetOneOrganisation(ctx context.Context, q projection.Query, id uuid.UUID) (*Organisation, error) {
	org, err := s.reader(q).organisation(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, newServiceError(http.StatusNotFound, CodeNotFound, "organisation not found", nil).With("org_uuid", id)
	}
	return org, nil
}

// ListOrganisations returns every active organisation, ordered by name.
func (s *OrgService) ListOrganisations(ctx context.Context, q projection.Query) ([]*Organisation, error) {
	r := s.reader(q)
	items, err := r.c.Organisation().GetAll(ctx, lora.Filter{}.Add(lora.KeyValidity, lora.Active))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*Organisation, 0, len(items))
	for _, it := range items {
		org, err := r.decodeOrganisation(ctx, it.ID, it.Object)
		if err != nil {
			return nil, err
		}
		if org != nil {
			out = append(out, org)
		}
	}
	intl.SortBy(s.collator, out, func(o *Organisation) string { return o.Name })
	return out, nil
}
