package services

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/pkg/intl"
)

// ParentKind tells whether a children listing is rooted at an
// organisation or at a unit.
type ParentKind string

const (
	ParentOrganisation ParentKind = "o"
	ParentUnit         ParentKind = "ou"
)

// GetChildren lists the active units directly below parentID, ordered by
// name, each with its own child count.
func (s *OrgService) GetChildren(ctx context.Context, q projection.Query, kind ParentKind, parentID uuid.UUID) ([]UnitWithChildCount, error) {
	r := s.reader(q)
	switch kind {
	case ParentOrganisation:
		org, err := r.organisation(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, newServiceError(http.StatusNotFound, CodeNotFound, "organisation not found", nil).With("org_uuid", parentID)
		}
	case ParentUnit:
		if _, err := r.mustLoadUnit(ctx, parentID); err != nil {
			return nil, err
		}
	default:
		return nil, invalidInput("unknown parent type " + string(kind))
	}

	items, err := r.c.OrganisationUnit().GetAll(ctx, activeChildren(parentID))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]UnitWithChildCount, 0, len(items))
	for _, it := range items {
		u, err := decodeUnit(it.ID, r.picker(ctx, it.ID, it.Object))
		if err != nil {
			return nil, err
		}
		if u == nil {
			continue
		}
		child, err := r.withChildCount(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	intl.SortBy(s.collator, out, func(u UnitWithChildCount) string { return u.Name })
	return out, nil
}

type ListParams struct {
	Start int
	Limit int
	Query string
}

func (s *OrgService) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.pageSize
	case requested > s.maxPageSize:
		return s.maxPageSize
	default:
		return requested
	}
}

// ListOrgUnits pages through the active units of an organisation, ordered
// by name. Query matches any attribute value.
func (s *OrgService) ListOrgUnits(ctx context.Context, q projection.Query, orgID uuid.UUID, p ListParams) (loraclient.Page[MinimalUnit], error) {
	r := s.reader(q)
	filter := lora.Filter{}.
		Add(lora.OrgUnitBelongsTo.Name, orgID.String()).
		Add(lora.KeyValidity, lora.Active)
	if p.Query != "" {
		filter.Add("vilkaarligattr", "%"+p.Query+"%")
	}
	items, err := r.c.OrganisationUnit().GetAll(ctx, filter)
	if err != nil {
		return loraclient.Page[MinimalUnit]{}, mapError(err)
	}
	all := make([]MinimalUnit, 0, len(items))
	for _, it := range items {
		u, err := decodeUnit(it.ID, r.picker(ctx, it.ID, it.Object))
		if err != nil {
			return loraclient.Page[MinimalUnit]{}, err
		}
		if u != nil {
			all = append(all, r.minimal(u))
		}
	}
	intl.SortBy(s.collator, all, func(u MinimalUnit) string { return u.Name })

	start := max(p.Start, 0)
	page := loraclient.Page[MinimalUnit]{Total: len(all), Offset: start, Items: []MinimalUnit{}}
	if start < len(all) {
		end := min(start+s.limit(p.Limit), len(all))
		page.Items = all[start:end]
	}
	return page, nil
}

var unitEffectFields = []lora.Field{
	lora.OrgUnitProperties,
	lora.OrgUnitType,
	lora.OrgUnitParent,
	lora.OrgUnitBelongsTo,
	lora.OrgUnitValidity,
}

// GetOrgUnitEffects returns one SelfUnit per span over which none of the
// unit's fields change, limited to the spans where the unit is active and
// relevant to the query.
func (s *OrgService) GetOrgUnitEffects(ctx context.Context, q projection.Query, id uuid.UUID) ([]SelfUnit, error) {
	r := s.reader(q)
	full, _, err := r.c.OrganisationUnit().Full(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if full == nil {
		return nil, unitNotFound(id)
	}
	effects, err := r.c.OrganisationUnit().GetEffects(ctx, id, unitEffectFields, nil)
	if err != nil {
		return nil, mapError(err)
	}
	out := []SelfUnit{}
	for eff := range effects {
		states := eff.Object.Facts(lora.OrgUnitValidity)
		if len(states) == 0 || states[0].Get(lora.KeyValidity) != lora.Active {
			continue
		}
		u, err := decodeUnit(id, effectPicker(eff.Object))
		if err != nil {
			return nil, err
		}
		if u == nil {
			continue
		}
		u.validity = eff.Interval
		self, err := r.self(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, *self)
	}
	return out, nil
}

// HistoryEntry is one registration of a unit, newest first in listings.
type HistoryEntry struct {
	From          string         `json:"from"`
	To            string         `json:"to"`
	Action        string         `json:"action"`
	LifeCycleCode string         `json:"life_cycle_code"`
	UserRef       string         `json:"user_ref"`
	Changes       jsondiff.Patch `json:"changes,omitempty"`
}

// GetOrgUnitHistory lists the unit's registrations with the change each
// one made to the previous.
func (s *OrgService) GetOrgUnitHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	r := s.reader(projection.Query{})
	regs, err := r.c.OrganisationUnit().Registrations(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if len(regs) == 0 {
		return nil, unitNotFound(id)
	}
	out := make([]HistoryEntry, 0, len(regs))
	var prev *lora.Object
	for _, reg := range regs {
		entry := HistoryEntry{
			From:          reg.From.Timestamp.String(),
			To:            reg.To.Timestamp.String(),
			Action:        reg.Note,
			LifeCycleCode: reg.LifeCycleCode,
			UserRef:       reg.UserRef,
		}
		if prev != nil {
			patch, err := jsondiff.Compare(prev, &reg.Object)
			if err != nil {
				logWithFields(ctx, logrus.WarnLevel, "failed to diff registrations", logrus.Fields{"org_unit": id, "error": err})
			} else {
				entry.Changes = patch
			}
		}
		obj := reg.Object
		prev = &obj
		out = append(out, entry)
	}
	slices.Reverse(out)
	return out, nil
}
