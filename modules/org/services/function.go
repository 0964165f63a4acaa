package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// FunctionKind is the kind of organisation function: an employee's
// engagement in, association with or management of a unit.
type FunctionKind string

const (
	KindEngagement  FunctionKind = "engagement"
	KindAssociation FunctionKind = "association"
	KindManager     FunctionKind = "manager"
)

var functionNames = map[FunctionKind]string{
	KindEngagement:  "Engagement",
	KindAssociation: "Tilknytning",
	KindManager:     "Leder",
}

var functionEditNotes = map[string]string{
	"Engagement":  payload.NoteEditFunc,
	"Tilknytning": "Rediger tilknytning",
	"Leder":       "Rediger leder",
}

func (k FunctionKind) Valid() bool {
	_, ok := functionNames[k]
	return ok
}

type CreateFunctionRequest struct {
	UUID         *uuid.UUID
	Person       uuid.UUID
	OrgUnit      uuid.UUID
	FunctionType *uuid.UUID
	Tasks        []uuid.UUID
	Address      *AddressInput
	UserKey      string
	Validity     Validity
}

func functionNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeNotFound, "organisation function not found", nil).With("function_uuid", id)
}

func employeeNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeNotFound, "employee not found", nil).With("employee_uuid", id)
}

func (r *reader) unitOrganisation(ctx context.Context, unitID uuid.UUID) (uuid.UUID, error) {
	unit, _, err := r.c.OrganisationUnit().Full(ctx, unitID)
	if err != nil {
		return uuid.Nil, mapError(err)
	}
	if unit == nil {
		return uuid.Nil, unitNotFound(unitID)
	}
	org, isUnit, err := r.resolveParent(ctx, unitID)
	if err != nil || !isUnit {
		return uuid.Nil, err
	}
	return org, nil
}

func (r *reader) requireEmployee(ctx context.Context, id uuid.UUID) error {
	obj, _, err := r.c.User().Full(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if obj == nil {
		return employeeNotFound(id)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// CreateFunction places an employee in a unit as the given kind of
// function.
func (s *OrgService) CreateFunction(ctx context.Context, kind FunctionKind, req CreateFunctionRequest) (id uuid.UUID, err error) {
	defer func() { recordWrite("create_"+string(kind), err) }()
	name, ok := functionNames[kind]
	if !ok {
		return uuid.Nil, invalidInput("unknown function kind " + string(kind))
	}
	iv, err := s.parseInterval(req.Validity)
	if err != nil {
		return uuid.Nil, err
	}
	r := s.reader(at(iv.From))
	if err := r.requireEmployee(ctx, req.Person); err != nil {
		return uuid.Nil, err
	}
	org, err := r.unitOrganisation(ctx, req.OrgUnit)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.checkDateInUnitRange(ctx, req.OrgUnit, iv); err != nil {
		return uuid.Nil, err
	}

	userKey := req.UserKey
	if userKey == "" {
		userKey = req.Person.String() + " " + req.OrgUnit.String() + " " + name
	}
	in := payload.FunctionInput{
		Name:         name,
		UserKey:      userKey,
		Users:        []string{req.Person.String()},
		Units:        []string{req.OrgUnit.String()},
		Organisation: org.String(),
		Tasks:        uuidStrings(req.Tasks),
		Validity:     iv,
	}
	if req.FunctionType != nil {
		in.FunctionType = req.FunctionType.String()
	}
	if req.Address != nil {
		values, err := r.encodeAddress(ctx, *req.Address)
		if err != nil {
			return uuid.Nil, err
		}
		in.Addresses = []map[string]string{values}
	}
	obj, err := payload.CreateFunction(in)
	if err != nil {
		return uuid.Nil, mapError(err)
	}
	if req.UUID != nil {
		id = *req.UUID
	}
	id, err = r.c.OrganisationFunc().Create(ctx, obj, id)
	if err != nil {
		return uuid.Nil, mapError(err)
	}
	return id, nil
}

type EditFunctionRequest struct {
	Original *struct {
		Validity Validity
	}
	Data struct {
		Person       *uuid.UUID
		OrgUnit      *uuid.UUID
		FunctionType *uuid.UUID
		// Tasks replaces the task list over the edited window when non-nil.
		Tasks    []uuid.UUID
		Address  *AddressInput
		Validity Validity
	}
}

// replaceDuring cuts every version of a multi-valued field back to the
// parts outside iv and adds one version per value over iv.
func replaceDuring(facts []lora.Fact, iv virkning.Interval, values []map[string]string) []lora.Fact {
	before := virkning.Interval{From: virkning.NegInf, To: iv.From, ToIncluded: !iv.FromIncluded}
	after := virkning.Interval{From: iv.To, FromIncluded: !iv.ToIncluded, To: virkning.PosInf}
	out := make([]lora.Fact, 0, len(facts)+len(values))
	for _, f := range facts {
		if !virkning.Overlaps(f.Virkning, iv) {
			out = append(out, f.Clone())
			continue
		}
		if cut, ok := virkning.Intersect(f.Virkning, before); ok {
			out = append(out, f.During(cut))
		}
		if cut, ok := virkning.Intersect(f.Virkning, after); ok {
			out = append(out, f.During(cut))
		}
	}
	for _, v := range values {
		out = append(out, lora.Fact{Values: v, Virkning: iv})
	}
	lora.SortFacts(out)
	return out
}

// EditFunction applies an edit to an organisation function, with the same
// merge rules as unit edits.
func (s *OrgService) EditFunction(ctx context.Context, id uuid.UUID, req EditFunctionRequest) (err error) {
	defer func() { recordWrite("edit_function", err) }()
	var original *Validity
	if req.Original != nil {
		original = &req.Original.Validity
	}
	next, old, anchor, err := s.editWindow(original, req.Data.Validity)
	if err != nil {
		return err
	}
	r := s.reader(at(next.From))
	full, token, err := r.c.OrganisationFunc().Full(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return functionNotFound(id)
	}

	note := payload.NoteEditFunc
	if props, ok := payload.VersionAt(full.Facts(lora.FuncProperties), anchor); ok {
		if n, ok := functionEditNotes[props.Get(lora.KeyFuncName)]; ok {
			note = n
		}
	}

	data := req.Data
	updates := []payload.FieldUpdate{{
		Field:  lora.FuncValidity,
		Values: map[string]string{lora.KeyValidity: lora.Active},
	}}
	if data.Person != nil {
		if err := r.requireEmployee(ctx, *data.Person); err != nil {
			return err
		}
		updates = append(updates, payload.FieldUpdate{
			Field:  lora.FuncAssociatedUsers,
			Values: map[string]string{lora.KeyUUID: data.Person.String()},
		})
	}
	unitID, hasUnit := refAt(full, lora.FuncAssociatedUnits, anchor)
	if data.OrgUnit != nil {
		unitID, hasUnit = *data.OrgUnit, true
		updates = append(updates, payload.FieldUpdate{
			Field:  lora.FuncAssociatedUnits,
			Values: map[string]string{lora.KeyUUID: data.OrgUnit.String()},
		})
	}
	if data.FunctionType != nil {
		updates = append(updates, payload.FieldUpdate{
			Field:  lora.FuncType,
			Values: map[string]string{lora.KeyUUID: data.FunctionType.String()},
		})
	}

	out := &lora.Object{Note: note}
	if err := payload.UpdatePayload(next, anchor, updates, full, out); err != nil {
		return mapError(err)
	}
	if data.Tasks != nil {
		tasks := make([]map[string]string, len(data.Tasks))
		for i, t := range data.Tasks {
			tasks[i] = map[string]string{lora.KeyUUID: t.String()}
		}
		out.SetFacts(lora.FuncTasks, replaceDuring(full.Facts(lora.FuncTasks), next, tasks))
	}
	if data.Address != nil {
		values, err := r.encodeAddress(ctx, *data.Address)
		if err != nil {
			return err
		}
		out.SetFacts(lora.FuncAddresses, replaceDuring(full.Facts(lora.FuncAddresses), next, []map[string]string{values}))
	}
	inactivateUncovered(old, next, lora.FuncValidity, out)
	payload.EnsureBounds(next, lora.FuncFields, full, out)

	if hasUnit {
		if err := s.checkDateInUnitRange(ctx, unitID, next); err != nil {
			return err
		}
	}
	if _, err := r.c.OrganisationFunc().UpdateIfUnchanged(ctx, out, id, token); err != nil {
		return mapError(err)
	}
	return nil
}

// TerminateFunction ends a function on the given inclusive date.
func (s *OrgService) TerminateFunction(ctx context.Context, id uuid.UUID, v Validity) (err error) {
	defer func() { recordWrite("terminate_function", err) }()
	if v.To == nil || *v.To == "" {
		return invalidInput("missing validity.to")
	}
	date, err := s.parseTo(v.To)
	if err != nil {
		return err
	}
	return s.terminateFunctionAt(ctx, id, date)
}

// functionWrite is one prepared update of a function, applied only once
// every write of the operation has been built.
type functionWrite struct {
	id    uuid.UUID
	token time.Time
	edit  *lora.Object
}

func (s *OrgService) planTermination(ctx context.Context, r *reader, id uuid.UUID, date virkning.Bound) (functionWrite, error) {
	full, token, err := r.c.OrganisationFunc().Full(ctx, id)
	if err != nil {
		return functionWrite{}, mapError(err)
	}
	if full == nil {
		return functionWrite{}, functionNotFound(id)
	}
	return functionWrite{id: id, token: token, edit: payload.Inactivate(lora.FuncValidity, date, payload.NoteTerminateFunc)}, nil
}

func (s *OrgService) terminateFunctionAt(ctx context.Context, id uuid.UUID, date virkning.Bound) error {
	r := s.reader(at(date))
	w, err := s.planTermination(ctx, r, id, date)
	if err != nil {
		return err
	}
	if _, err := r.c.OrganisationFunc().UpdateIfUnchanged(ctx, w.edit, w.id, w.token); err != nil {
		return mapError(err)
	}
	return nil
}

// MoveFunction points a function at another unit from the given date
// until the function's current end.
func (s *OrgService) MoveFunction(ctx context.Context, id, unitID uuid.UUID, from string) (err error) {
	defer func() { recordWrite("move_function", err) }()
	date, err := s.parseFrom(&from)
	if err != nil {
		return err
	}
	r := s.reader(at(date))
	full, token, err := r.c.OrganisationFunc().Full(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return functionNotFound(id)
	}
	obj, err := payload.MoveFunction(full, unitID.String(), date)
	if err != nil {
		return mapError(err)
	}
	if err := s.checkDateInUnitRange(ctx, unitID, obj.Facts(lora.FuncAssociatedUnits)[0].Virkning); err != nil {
		return err
	}
	if _, err := r.c.OrganisationFunc().UpdateIfUnchanged(ctx, obj, id, token); err != nil {
		return mapError(err)
	}
	return nil
}

// FutureMove is an engagement starting after the move date. Overwrite
// replaces it by the moved copy; otherwise the copy fills the time up to
// its start.
type FutureMove struct {
	UUID      uuid.UUID `json:"uuid"`
	Overwrite bool      `json:"overwrite"`
}

type MoveEngagementsRequest struct {
	OrgUnit uuid.UUID
	Date    string
	Present []uuid.UUID
	Future  []FutureMove
}

// valuesAt copies the versions of f in force at b.
func valuesAt(obj *lora.Object, f lora.Field, b virkning.Bound) []string {
	var out []string
	for _, fact := range obj.Facts(f) {
		if fact.Virkning.Contains(b.Time()) && fact.UUID() != "" {
			out = append(out, fact.UUID())
		}
	}
	return out
}

// relocatedFunction builds a copy of the function as it stands at ref,
// attached to unitID over iv.
func relocatedFunction(obj *lora.Object, unitID uuid.UUID, ref virkning.Bound, iv virkning.Interval) (*lora.Object, error) {
	props, ok := payload.VersionAt(obj.Facts(lora.FuncProperties), ref)
	if !ok {
		return nil, payload.ErrOldIntervalNotFound
	}
	in := payload.FunctionInput{
		Name:     props.Get(lora.KeyFuncName),
		UserKey:  props.Get(lora.KeyUserKey),
		Users:    valuesAt(obj, lora.FuncAssociatedUsers, ref),
		Units:    []string{unitID.String()},
		Tasks:    valuesAt(obj, lora.FuncTasks, ref),
		Validity: iv,
	}
	if orgs := valuesAt(obj, lora.FuncAssociatedOrgs, ref); len(orgs) > 0 {
		in.Organisation = orgs[0]
	}
	if types := valuesAt(obj, lora.FuncType, ref); len(types) > 0 {
		in.FunctionType = types[0]
	}
	for _, f := range obj.Facts(lora.FuncAddresses) {
		if f.Virkning.Contains(ref.Time()) {
			in.Addresses = append(in.Addresses, f.Clone().Values)
		}
	}
	created, err := payload.CreateFunction(in)
	if err != nil {
		return nil, err
	}
	created.Note = payload.NoteMoveEngagement
	return created, nil
}

// activeSpan is the hull of the active state versions.
func activeSpan(states []lora.Fact) (virkning.Interval, bool) {
	obj := &lora.Object{}
	for _, f := range states {
		if f.Get(lora.KeyValidity) == lora.Active {
			obj.AppendFacts(lora.FuncValidity, f)
		}
	}
	return obj.Span()
}

// plannedMove is a prepared engagement move: an optional edit of the
// original and the copy to create in the destination unit.
type plannedMove struct {
	functionWrite
	created *lora.Object
}

// planMove validates one engagement move and builds its payloads without
// touching the store.
func (s *OrgService) planMove(ctx context.Context, r *reader, id, unitID uuid.UUID, date virkning.Bound, future *FutureMove) (plannedMove, error) {
	full, token, err := r.c.OrganisationFunc().Full(ctx, id)
	if err != nil {
		return plannedMove{}, mapError(err)
	}
	if full == nil {
		return plannedMove{}, functionNotFound(id)
	}
	span, ok := activeSpan(full.Facts(lora.FuncValidity))
	if !ok {
		return plannedMove{}, invalidInput("engagement is not active").With("engagement_uuid", id)
	}

	var (
		ref  virkning.Bound
		iv   virkning.Interval
		edit *lora.Object
	)
	switch {
	case future == nil:
		ref, iv = date, virkning.Interval{From: date, FromIncluded: true, To: span.To, ToIncluded: span.ToIncluded}
		edit = payload.Inactivate(lora.FuncValidity, date, payload.NoteMoveEngagement)
	case future.Overwrite:
		ref, iv = span.From, virkning.Interval{From: date, FromIncluded: true, To: span.To, ToIncluded: span.ToIncluded}
		edit = payload.InactivateFully(lora.FuncValidity, span, payload.NoteMoveEngagement)
	default:
		ref, iv = span.From, payload.Validity(date, span.From)
	}
	if err := iv.Validate(); err != nil {
		return plannedMove{}, mapError(err)
	}
	if iv.Empty() {
		return plannedMove{}, invalidInput("engagement starts on the move date").With("engagement_uuid", id)
	}
	created, err := relocatedFunction(full, unitID, ref, iv)
	if err != nil {
		return plannedMove{}, mapError(err)
	}
	return plannedMove{functionWrite: functionWrite{id: id, token: token, edit: edit}, created: created}, nil
}

// MoveEngagements moves engagements to another unit from a date. Present
// engagements end the day before and continue as copies in the new unit.
// Future engagements get a copy in the new unit as described by
// FutureMove. The ids of the copies are returned.
func (s *OrgService) MoveEngagements(ctx context.Context, req MoveEngagementsRequest) (created []uuid.UUID, err error) {
	defer func() { recordWrite("move_engagements", err) }()
	date, err := s.parseFrom(&req.Date)
	if err != nil {
		return nil, err
	}
	r := s.reader(at(date))
	if _, err := r.unitOrganisation(ctx, req.OrgUnit); err != nil {
		return nil, err
	}
	if err := s.checkDateInUnitRange(ctx, req.OrgUnit, payload.Validity(date, date.AddDate(0, 0, 1))); err != nil {
		return nil, err
	}
	plans := make([]plannedMove, 0, len(req.Present)+len(req.Future))
	seen := map[uuid.UUID]bool{}
	plan := func(id uuid.UUID, future *FutureMove) error {
		if seen[id] {
			return invalidInput("engagement listed more than once").With("engagement_uuid", id)
		}
		seen[id] = true
		p, err := s.planMove(ctx, r, id, req.OrgUnit, date, future)
		if err != nil {
			return err
		}
		plans = append(plans, p)
		return nil
	}
	for _, id := range req.Present {
		if err := plan(id, nil); err != nil {
			return nil, err
		}
	}
	for i := range req.Future {
		if err := plan(req.Future[i].UUID, &req.Future[i]); err != nil {
			return nil, err
		}
	}

	funcs := r.c.OrganisationFunc()
	for _, p := range plans {
		if p.edit != nil {
			if _, err := funcs.UpdateIfUnchanged(ctx, p.edit, p.id, p.token); err != nil {
				return created, mapError(err)
			}
		}
		newID, err := funcs.Create(ctx, p.created, uuid.Nil)
		if err != nil {
			return created, mapError(err)
		}
		created = append(created, newID)
	}
	logWithFields(ctx, logrus.InfoLevel, "engagements moved", logrus.Fields{"org_unit": req.OrgUnit, "count": len(created)})
	return created, nil
}

// TerminateEmployee ends every engagement of an employee active on the
// given inclusive date. It returns the number of engagements ended.
func (s *OrgService) TerminateEmployee(ctx context.Context, person uuid.UUID, v Validity) (n int, err error) {
	defer func() { recordWrite("terminate_employee", err) }()
	if v.To == nil || *v.To == "" {
		return 0, invalidInput("missing validity.to")
	}
	date, err := s.parseTo(v.To)
	if err != nil {
		return 0, err
	}
	r := s.reader(projection.Query{Validity: virkning.Present, EffectiveDate: date.AddDate(0, 0, -1).Time()})
	if err := r.requireEmployee(ctx, person); err != nil {
		return 0, err
	}
	ids, err := r.c.OrganisationFunc().Query(ctx, lora.Filter{}.
		Add(lora.FuncAssociatedUsers.Name, person.String()).
		Add(lora.KeyFuncName, functionNames[KindEngagement]).
		Add(lora.KeyValidity, lora.Active))
	if err != nil {
		return 0, mapError(err)
	}
	writes := make([]functionWrite, 0, len(ids))
	for _, id := range ids {
		w, err := s.planTermination(ctx, r, id, date)
		if err != nil {
			return 0, err
		}
		writes = append(writes, w)
	}
	for _, w := range writes {
		if _, err := r.c.OrganisationFunc().UpdateIfUnchanged(ctx, w.edit, w.id, w.token); err != nil {
			return n, mapError(err)
		}
		n++
	}
	return n, nil
}
