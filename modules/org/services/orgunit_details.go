package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// unitFacts is one unit decoded at a single instant or effect.
type unitFacts struct {
	id          uuid.UUID
	name        string
	userKey     string
	integration *string
	parent      uuid.UUID
	org         uuid.UUID
	unitType    uuid.UUID
	validity    virkning.Interval
}

// decodeUnit returns nil when the unit has no properties in view or is
// inactive there.
func decodeUnit(id uuid.UUID, pick picker) (*unitFacts, error) {
	attrs, ok, err := pick(lora.OrgUnitProperties)
	if err != nil || !ok {
		return nil, err
	}
	u := &unitFacts{
		id:          id,
		name:        attrs.Get(lora.KeyUnitName),
		userKey:     attrs.Get(lora.KeyUserKey),
		integration: optional(attrs.Values, lora.KeyIntegrate),
		validity:    attrs.Virkning,
	}
	state, ok, err := pick(lora.OrgUnitValidity)
	if err != nil {
		return nil, err
	}
	if ok {
		if state.Get(lora.KeyValidity) != lora.Active {
			return nil, nil
		}
		u.validity = state.Virkning
	}
	if u.parent, err = pickUUID(pick, lora.OrgUnitParent); err != nil {
		return nil, err
	}
	if u.org, err = pickUUID(pick, lora.OrgUnitBelongsTo); err != nil {
		return nil, err
	}
	if u.unitType, err = pickUUID(pick, lora.OrgUnitType); err != nil {
		return nil, err
	}
	return u, nil
}

// MinimalUnit carries the name and key of a unit.
type MinimalUnit struct {
	Name     string    `json:"name"`
	UserKey  string    `json:"user_key"`
	UUID     uuid.UUID `json:"uuid"`
	Validity Validity  `json:"validity"`
}

// UnitWithChildCount adds the number of active children.
type UnitWithChildCount struct {
	MinimalUnit
	ChildCount int `json:"child_count"`
}

// SelfUnit adds the organisation, the parent and the unit type.
type SelfUnit struct {
	MinimalUnit
	Org         *Organisation `json:"org"`
	Parent      *MinimalUnit  `json:"parent"`
	OrgUnitType *Class        `json:"org_unit_type"`
}

type UserSettings struct {
	OrgUnit map[string]any `json:"orgunit"`
}

// FullUnit resolves the whole parent chain, the location path and the
// settings in effect for the unit.
type FullUnit struct {
	MinimalUnit
	Org          *Organisation `json:"org"`
	Parent       *FullUnit     `json:"parent"`
	OrgUnitType  *Class        `json:"org_unit_type"`
	Location     *string       `json:"location,omitempty"`
	UserSettings *UserSettings `json:"user_settings,omitempty"`
}

// IntegrationUnit adds the raw integration data.
type IntegrationUnit struct {
	MinimalUnit
	IntegrationData *string `json:"integration_data"`
}

func (r *reader) loadUnit(ctx context.Context, id uuid.UUID) (*unitFacts, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	obj, err := r.c.OrganisationUnit().Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if obj == nil {
		return nil, nil
	}
	return decodeUnit(id, r.picker(ctx, id, obj))
}

func (r *reader) mustLoadUnit(ctx context.Context, id uuid.UUID) (*unitFacts, error) {
	u, err := r.loadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, unitNotFound(id)
	}
	return u, nil
}

func (r *reader) minimal(u *unitFacts) MinimalUnit {
	return MinimalUnit{
		Name:     u.name,
		UserKey:  u.userKey,
		UUID:     u.id,
		Validity: r.s.validityOf(u.validity),
	}
}

func (r *reader) childCount(ctx context.Context, id uuid.UUID) (int, error) {
	ids, err := r.c.OrganisationUnit().Query(ctx, activeChildren(id))
	if err != nil {
		return 0, mapError(err)
	}
	return len(ids), nil
}

func activeChildren(parent uuid.UUID) lora.Filter {
	return lora.Filter{}.
		Add(lora.OrgUnitParent.Name, parent.String()).
		Add(lora.KeyValidity, lora.Active)
}

func (r *reader) withChildCount(ctx context.Context, u *unitFacts) (UnitWithChildCount, error) {
	n, err := r.childCount(ctx, u.id)
	if err != nil {
		return UnitWithChildCount{}, err
	}
	return UnitWithChildCount{MinimalUnit: r.minimal(u), ChildCount: n}, nil
}

func (r *reader) unitType(ctx context.Context, u *unitFacts) (*Class, error) {
	if u.unitType == uuid.Nil {
		return nil, nil
	}
	return r.class(ctx, u.unitType)
}

func (r *reader) self(ctx context.Context, u *unitFacts) (*SelfUnit, error) {
	out := &SelfUnit{MinimalUnit: r.minimal(u)}
	var err error
	if u.org != uuid.Nil {
		if out.Org, err = r.organisation(ctx, u.org); err != nil {
			return nil, err
		}
	}
	parent, err := r.loadUnit(ctx, u.parent)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		p := r.minimal(parent)
		out.Parent = &p
	}
	if out.OrgUnitType, err = r.unitType(ctx, u); err != nil {
		return nil, err
	}
	return out, nil
}

// full walks up the parent chain first and then builds the nodes from the
// top, so each node can derive its location and settings from its parent.
func (r *reader) full(ctx context.Context, u *unitFacts) (*FullUnit, error) {
	chain := []*unitFacts{u}
	seen := map[uuid.UUID]struct{}{u.id: {}}
	for cur := u; cur.parent != uuid.Nil; {
		if _, loop := seen[cur.parent]; loop {
			return nil, newServiceError(http.StatusInternalServerError, CodeInconsistentData, "unit hierarchy contains a cycle", nil).
				With("org_unit_uuid", cur.parent)
		}
		p, err := r.loadUnit(ctx, cur.parent)
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		seen[p.id] = struct{}{}
		chain = append(chain, p)
		cur = p
	}

	var parent *FullUnit
	for i := len(chain) - 1; i >= 0; i-- {
		node, err := r.fullNode(ctx, chain[i], parent)
		if err != nil {
			return nil, err
		}
		parent = node
	}
	return parent, nil
}

func (r *reader) fullNode(ctx context.Context, u *unitFacts, parent *FullUnit) (*FullUnit, error) {
	out := &FullUnit{MinimalUnit: r.minimal(u), Parent: parent}
	var err error
	if u.org != uuid.Nil {
		if out.Org, err = r.organisation(ctx, u.org); err != nil {
			return nil, err
		}
	}
	if out.OrgUnitType, err = r.unitType(ctx, u); err != nil {
		return nil, err
	}
	if u.parent == uuid.Nil {
		return out, nil
	}

	location := ""
	var inherited map[string]any
	if parent != nil {
		location = parent.Name
		if parent.Location != nil && *parent.Location != "" {
			location = *parent.Location + "/" + parent.Name
		}
		if parent.UserSettings != nil {
			inherited = parent.UserSettings.OrgUnit
		}
	}
	out.Location = &location

	settings, err := r.mergedSettings(ctx, u.id, inherited)
	if err != nil {
		return nil, err
	}
	out.UserSettings = &UserSettings{OrgUnit: settings}
	return out, nil
}

func (r *reader) integrationUnit(u *unitFacts) *IntegrationUnit {
	return &IntegrationUnit{MinimalUnit: r.minimal(u), IntegrationData: u.integration}
}

func (s *OrgService) GetMinimalUnit(ctx context.Context, q projection.Query, id uuid.UUID) (*MinimalUnit, error) {
	r := s.reader(q)
	u, err := r.mustLoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	out := r.minimal(u)
	return &out, nil
}

func (s *OrgService) GetUnitWithChildCount(ctx context.Context, q projection.Query, id uuid.UUID) (*UnitWithChildCount, error) {
	r := s.reader(q)
	u, err := r.mustLoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := r.withChildCount(ctx, u)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OrgService) GetSelfUnit(ctx context.Context, q projection.Query, id uuid.UUID) (*SelfUnit, error) {
	r := s.reader(q)
	u, err := r.mustLoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.self(ctx, u)
}

func (s *OrgService) GetFullUnit(ctx context.Context, q projection.Query, id uuid.UUID) (*FullUnit, error) {
	r := s.reader(q)
	u, err := r.mustLoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.full(ctx, u)
}

func (s *OrgService) GetIntegrationUnit(ctx context.Context, q projection.Query, id uuid.UUID) (*IntegrationUnit, error) {
	r := s.reader(q)
	u, err := r.mustLoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.integrationUnit(u), nil
}
