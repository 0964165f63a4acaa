package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/pkg/virkning"
)

// maxListedChildren caps the child units named in a refused termination.
const maxListedChildren = 5

type CreateOrgUnitRequest struct {
	UUID            *uuid.UUID
	Name            string
	UserKey         string
	Parent          uuid.UUID
	OrgUnitType     *uuid.UUID
	Addresses       []AddressInput
	IntegrationData map[string]any
	Validity        Validity
}

// resolveParent returns the organisation owning parentID, which may be a
// unit or the organisation itself.
func (r *reader) resolveParent(ctx context.Context, parentID uuid.UUID) (org uuid.UUID, isUnit bool, err error) {
	unit, _, err := r.c.OrganisationUnit().Full(ctx, parentID)
	if err != nil {
		return uuid.Nil, false, mapError(err)
	}
	if unit != nil {
		refs := unit.UUIDs(lora.OrgUnitBelongsTo)
		if len(refs) == 0 {
			return uuid.Nil, false, newServiceError(http.StatusInternalServerError, CodeInconsistentData, "parent unit has no organisation", nil).
				With("parent_uuid", parentID)
		}
		id, err := uuid.Parse(refs[0])
		if err != nil {
			return uuid.Nil, false, newServiceError(http.StatusInternalServerError, CodeInconsistentData, "invalid organisation reference", err)
		}
		return id, true, nil
	}
	orgObj, _, err := r.c.Organisation().Full(ctx, parentID)
	if err != nil {
		return uuid.Nil, false, mapError(err)
	}
	if orgObj == nil {
		return uuid.Nil, false, parentNotFound(parentID)
	}
	return parentID, false, nil
}

func encodeIntegrationData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", invalidInput("integration_data must be a JSON object")
	}
	return string(raw), nil
}

// CreateOrgUnit registers a new active unit below a unit or directly
// below an organisation.
func (s *OrgService) CreateOrgUnit(ctx context.Context, req CreateOrgUnitRequest) (id uuid.UUID, err error) {
	defer func() { recordWrite("create_org_unit", err) }()
	if req.Name == "" {
		return uuid.Nil, invalidInput("missing name")
	}
	if req.Parent == uuid.Nil {
		return uuid.Nil, invalidInput("missing parent")
	}
	iv, err := s.parseInterval(req.Validity)
	if err != nil {
		return uuid.Nil, err
	}
	r := s.reader(at(iv.From))

	org, parentIsUnit, err := r.resolveParent(ctx, req.Parent)
	if err != nil {
		return uuid.Nil, err
	}
	if parentIsUnit {
		if err := s.checkDateInUnitRange(ctx, req.Parent, iv); err != nil {
			return uuid.Nil, err
		}
	}

	userKey := req.UserKey
	if userKey == "" {
		userKey = req.Name + " " + uuid.NewString()
	}
	integration, err := encodeIntegrationData(req.IntegrationData)
	if err != nil {
		return uuid.Nil, err
	}
	addresses := make([]map[string]string, 0, len(req.Addresses))
	for _, a := range req.Addresses {
		values, err := r.encodeAddress(ctx, a)
		if err != nil {
			return uuid.Nil, err
		}
		addresses = append(addresses, values)
	}
	in := payload.UnitInput{
		Name:            req.Name,
		UserKey:         userKey,
		IntegrationData: integration,
		Organisation:    org.String(),
		Parent:          req.Parent.String(),
		Addresses:       addresses,
		Validity:        iv,
	}
	if req.OrgUnitType != nil {
		in.UnitType = req.OrgUnitType.String()
	}
	obj, err := payload.CreateUnit(in)
	if err != nil {
		return uuid.Nil, mapError(err)
	}

	if req.UUID != nil {
		id = *req.UUID
	}
	id, err = r.c.OrganisationUnit().Create(ctx, obj, id)
	if err != nil {
		return uuid.Nil, mapError(err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org unit created", logrus.Fields{"org_unit": id, "parent": req.Parent})
	return id, nil
}

// EditOrgUnitRequest changes a unit over Data.Validity. Original, when
// given, names the validity of the version being edited.
type EditOrgUnitRequest struct {
	Original *struct {
		Validity Validity
	}
	Data struct {
		UUID            *uuid.UUID
		Name            *string
		UserKey         *string
		IntegrationData map[string]any
		OrgUnitType     *uuid.UUID
		Parent          *uuid.UUID
		Validity        Validity
	}
}

// editWindow reads the edited and the previous validity of an edit and
// returns the instant of the version being replaced.
func (s *OrgService) editWindow(original *Validity, next Validity) (virkning.Interval, *virkning.Interval, virkning.Bound, error) {
	nextIV, err := s.parseInterval(next)
	if err != nil {
		return virkning.Interval{}, nil, virkning.Bound{}, err
	}
	if original == nil {
		return nextIV, nil, nextIV.From, nil
	}
	oldIV, err := s.parseInterval(*original)
	if err != nil {
		return virkning.Interval{}, nil, virkning.Bound{}, err
	}
	return nextIV, &oldIV, oldIV.From, nil
}

// inactivateUncovered marks the parts of old no longer covered by next as
// inactive, on top of the state versions already in out.
func inactivateUncovered(old *virkning.Interval, next virkning.Interval, field lora.Field, out *lora.Object) {
	if old == nil {
		return
	}
	tmp := &lora.Object{}
	payload.InactivateOldInterval(*old, next, field, tmp)
	facts := out.Facts(field)
	for _, f := range tmp.Facts(field) {
		facts = payload.Overwrite(facts, f)
	}
	out.SetFacts(field, facts)
}

func refAt(obj *lora.Object, f lora.Field, b virkning.Bound) (uuid.UUID, bool) {
	fact, ok := payload.VersionAt(obj.Facts(f), b)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fact.UUID())
	return id, err == nil
}

// EditOrgUnit applies an edit to a unit. The write fails with a conflict
// when the unit was changed after it was read.
func (s *OrgService) EditOrgUnit(ctx context.Context, id uuid.UUID, req EditOrgUnitRequest) (err error) {
	defer func() { recordWrite("edit_org_unit", err) }()
	data := req.Data
	if data.UUID != nil && *data.UUID != id {
		return invalidInput("cannot change unit uuid!")
	}
	var original *Validity
	if req.Original != nil {
		original = &req.Original.Validity
	}
	next, old, anchor, err := s.editWindow(original, data.Validity)
	if err != nil {
		return err
	}
	if err := s.checkNotInPast(next.From); err != nil {
		return err
	}

	r := s.reader(at(next.From))
	full, token, err := r.c.OrganisationUnit().Full(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return unitNotFound(id)
	}

	updates := []payload.FieldUpdate{{
		Field:  lora.OrgUnitValidity,
		Values: map[string]string{lora.KeyValidity: lora.Active},
	}}
	if data.Name != nil || data.UserKey != nil || data.IntegrationData != nil {
		attrs := full.Facts(lora.OrgUnitProperties)
		base, ok := payload.VersionAt(attrs, anchor)
		if !ok && len(attrs) > 0 {
			base = attrs[len(attrs)-1]
		}
		values := base.Clone().Values
		if values == nil {
			values = map[string]string{}
		}
		if data.Name != nil {
			values[lora.KeyUnitName] = *data.Name
		}
		if data.UserKey != nil {
			values[lora.KeyUserKey] = *data.UserKey
		}
		if data.IntegrationData != nil {
			raw, err := encodeIntegrationData(data.IntegrationData)
			if err != nil {
				return err
			}
			values[lora.KeyIntegrate] = raw
		}
		updates = append(updates, payload.FieldUpdate{Field: lora.OrgUnitProperties, Values: values})
	}
	if data.OrgUnitType != nil {
		updates = append(updates, payload.FieldUpdate{
			Field:  lora.OrgUnitType,
			Values: map[string]string{lora.KeyUUID: data.OrgUnitType.String()},
		})
	}
	parent, hasParent := refAt(full, lora.OrgUnitParent, next.From)
	if data.Parent != nil {
		if err := s.checkCandidateParent(ctx, id, *data.Parent, next.From); err != nil {
			return err
		}
		parent, hasParent = *data.Parent, true
		updates = append(updates, payload.FieldUpdate{
			Field:  lora.OrgUnitParent,
			Values: map[string]string{lora.KeyUUID: data.Parent.String()},
		})
	}

	out := &lora.Object{Note: payload.NoteEditUnit}
	if err := payload.UpdatePayload(next, anchor, updates, full, out); err != nil {
		return mapError(err)
	}
	inactivateUncovered(old, next, lora.OrgUnitValidity, out)
	payload.EnsureBounds(next, lora.OrgUnitFields, full, out)

	if hasParent {
		if _, isUnit, err := r.resolveParent(ctx, parent); err != nil {
			return err
		} else if isUnit {
			if err := s.checkDateInUnitRange(ctx, parent, next); err != nil {
				return err
			}
		}
	}

	if _, err := r.c.OrganisationUnit().UpdateIfUnchanged(ctx, out, id, token); err != nil {
		return mapError(err)
	}
	return nil
}

// activeDependants lists what keeps a unit from being terminated at the
// reader's instant: up to a few child units with their total count, and the
// functions attached to the unit.
func (r *reader) activeDependants(ctx context.Context, id uuid.UUID) (loraclient.Page[UnitWithChildCount], []uuid.UUID, error) {
	children, err := loraclient.PagedGet(ctx, r.c.OrganisationUnit(), activeChildren(id), 0, maxListedChildren,
		func(it loraclient.Item) (UnitWithChildCount, error) {
			u, err := decodeUnit(it.ID, r.picker(ctx, it.ID, it.Object))
			if err != nil || u == nil {
				return UnitWithChildCount{MinimalUnit: MinimalUnit{UUID: it.ID}}, err
			}
			return r.withChildCount(ctx, u)
		})
	if err != nil {
		return children, nil, mapError(err)
	}
	roles, err := r.c.OrganisationFunc().Query(ctx, lora.Filter{}.
		Add(lora.FuncAssociatedUnits.Name, id.String()).
		Add(lora.KeyValidity, lora.Active))
	if err != nil {
		return children, nil, mapError(err)
	}
	return children, roles, nil
}

// TerminateOrgUnit ends a unit on the given inclusive date. Units with
// active children or functions are refused.
//
// The check and the write are separate store calls. The write is
// conditional on the unit's own registration, which a new child or function
// does not change, so the condition only catches edits to the unit itself.
// The check is repeated after the write and a dependant seen then reverts
// the termination with a conflict. A dependant written after that second
// check can still land under a terminated unit.
func (s *OrgService) TerminateOrgUnit(ctx context.Context, id uuid.UUID, v Validity) (err error) {
	defer func() { recordWrite("terminate_org_unit", err) }()
	if v.To == nil || *v.To == "" {
		return invalidInput("missing validity.to")
	}
	date, err := s.parseTo(v.To)
	if err != nil {
		return err
	}
	r := s.reader(at(date))
	full, token, err := r.c.OrganisationUnit().Full(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return unitNotFound(id)
	}
	if err := s.checkDateInUnitRange(ctx, id, payload.Validity(date.AddDate(0, 0, -1), date)); err != nil {
		return err
	}

	children, roles, err := r.activeDependants(ctx, id)
	if err != nil {
		return err
	}
	if children.Total > 0 || len(roles) > 0 {
		return newServiceError(http.StatusBadRequest, CodeTerminateWithChildren,
			"cannot terminate unit with active children or roles", nil).
			With("org_unit_uuid", id).
			With("child_units", children.Items).
			With("child_count", children.Total).
			With("role_count", len(roles))
	}

	if _, err := r.c.OrganisationUnit().UpdateIfUnchanged(ctx,
		payload.Inactivate(lora.OrgUnitValidity, date, payload.NoteTerminateUnit), id, token); err != nil {
		return mapError(err)
	}

	children, roles, err = r.activeDependants(ctx, id)
	if err != nil {
		return err
	}
	if children.Total == 0 && len(roles) == 0 {
		logWithFields(ctx, logrus.InfoLevel, "org unit terminated", logrus.Fields{"org_unit": id, "date": date.String()})
		return nil
	}

	restore := &lora.Object{Note: payload.NoteEditUnit}
	after := payload.Validity(date, virkning.PosInf)
	for _, f := range full.Facts(lora.OrgUnitValidity) {
		if iv, ok := virkning.Intersect(f.Virkning, after); ok {
			restore.AppendFacts(lora.OrgUnitValidity, f.During(iv))
		}
	}
	conflict := newServiceError(http.StatusConflict, CodeConflict, "unit gained dependants during termination", nil).
		With("org_unit_uuid", id).
		With("child_count", children.Total).
		With("role_count", len(roles)).
		With("reverted", true)
	if restore.Has(lora.OrgUnitValidity) {
		if _, rerr := r.c.OrganisationUnit().Update(ctx, restore, id); rerr != nil {
			logWithFields(ctx, logrus.ErrorLevel, "failed to revert termination", logrus.Fields{"org_unit": id, "error": rerr})
			conflict.Cause = rerr
			conflict.With("reverted", false).With("revert_error", rerr.Error())
		}
	}
	return conflict
}
