package payload

import (
	"fmt"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

// Notes attached to the registrations this package builds.
const (
	NoteCreated        = "Oprettet i MO"
	NoteTerminateUnit  = "Afslut enhed"
	NoteTerminateFunc  = "Afslut medarbejder"
	NoteMoveEngagement = "Flyt engagement"
	NoteEditUnit       = "Rediger organisationsenhed"
	NoteEditFunc       = "Rediger engagement"
	NoteAddAddress     = "Tilføj adresse"
	NoteEditAddress    = "Rediger adresse"
)

// Validity returns the half-open interval [from, to).
func Validity(from, to virkning.Bound) virkning.Interval {
	return virkning.Interval{From: from, FromIncluded: true, To: to}
}

// AddVirkning stamps iv on every fact of obj.
func AddVirkning(obj *lora.Object, iv virkning.Interval) {
	obj.Each(func(_ lora.Field, f *lora.Fact) {
		f.Virkning = iv
	})
}

// Relation is a single reference written to a relation field.
type Relation struct {
	Field  lora.Field
	Values map[string]string
}

func Ref(field lora.Field, id string) Relation {
	return Relation{Field: field, Values: map[string]string{lora.KeyUUID: id}}
}

// UnitInput carries the values of a new organisation unit.
type UnitInput struct {
	Name            string
	UserKey         string
	IntegrationData string
	Organisation    string
	Parent          string
	UnitType        string
	Addresses       []map[string]string
	Validity        virkning.Interval
}

// CreateUnit builds the payload registering a new, active unit.
func CreateUnit(in UnitInput) (*lora.Object, error) {
	if err := in.Validity.Validate(); err != nil {
		return nil, err
	}
	props := map[string]string{lora.KeyUnitName: in.Name, lora.KeyUserKey: in.UserKey}
	if in.IntegrationData != "" {
		props[lora.KeyIntegrate] = in.IntegrationData
	}
	obj := &lora.Object{Note: NoteCreated}
	obj.SetFacts(lora.OrgUnitProperties, []lora.Fact{{Values: props}})
	obj.SetFacts(lora.OrgUnitValidity, []lora.Fact{{Values: map[string]string{lora.KeyValidity: lora.Active}}})
	for _, rel := range []Relation{
		Ref(lora.OrgUnitBelongsTo, in.Organisation),
		Ref(lora.OrgUnitParent, in.Parent),
		Ref(lora.OrgUnitType, in.UnitType),
	} {
		if rel.Values[lora.KeyUUID] != "" {
			obj.AppendFacts(rel.Field, lora.Fact{Values: rel.Values})
		}
	}
	for _, addr := range in.Addresses {
		obj.AppendFacts(lora.OrgUnitAddresses, lora.Fact{Values: addr})
	}
	AddVirkning(obj, in.Validity)
	return obj, nil
}

// FunctionInput carries the values of a new organisation function.
type FunctionInput struct {
	Name         string
	UserKey      string
	Users        []string
	Units        []string
	Organisation string
	FunctionType string
	Tasks        []string
	Addresses    []map[string]string
	Validity     virkning.Interval
}

// CreateFunction builds the payload registering a new, active function.
func CreateFunction(in FunctionInput) (*lora.Object, error) {
	if err := in.Validity.Validate(); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, fmt.Errorf("function name is required")
	}
	obj := &lora.Object{Note: NoteCreated}
	obj.SetFacts(lora.FuncProperties, []lora.Fact{{Values: map[string]string{
		lora.KeyFuncName: in.Name,
		lora.KeyUserKey:  in.UserKey,
	}}})
	obj.SetFacts(lora.FuncValidity, []lora.Fact{{Values: map[string]string{lora.KeyValidity: lora.Active}}})
	for _, id := range in.Users {
		obj.AppendFacts(lora.FuncAssociatedUsers, lora.Fact{Values: map[string]string{lora.KeyUUID: id}})
	}
	for _, id := range in.Units {
		obj.AppendFacts(lora.FuncAssociatedUnits, lora.Fact{Values: map[string]string{lora.KeyUUID: id}})
	}
	if in.Organisation != "" {
		obj.AppendFacts(lora.FuncAssociatedOrgs, lora.Fact{Values: map[string]string{lora.KeyUUID: in.Organisation}})
	}
	if in.FunctionType != "" {
		obj.AppendFacts(lora.FuncType, lora.Fact{Values: map[string]string{lora.KeyUUID: in.FunctionType}})
	}
	for _, id := range in.Tasks {
		obj.AppendFacts(lora.FuncTasks, lora.Fact{Values: map[string]string{lora.KeyUUID: id}})
	}
	for _, addr := range in.Addresses {
		obj.AppendFacts(lora.FuncAddresses, lora.Fact{Values: addr})
	}
	AddVirkning(obj, in.Validity)
	return obj, nil
}

// Inactivate writes an inactive state on field from the given date onward.
func Inactivate(field lora.Field, from virkning.Bound, note string) *lora.Object {
	obj := &lora.Object{Note: note}
	obj.SetFacts(field, []lora.Fact{
		lora.NewFact(Validity(from, virkning.PosInf), lora.KeyValidity, lora.Inactive),
	})
	return obj
}

// InactivateFully marks field inactive over the whole of iv.
func InactivateFully(field lora.Field, iv virkning.Interval, note string) *lora.Object {
	obj := &lora.Object{Note: note}
	obj.SetFacts(field, []lora.Fact{lora.NewFact(iv, lora.KeyValidity, lora.Inactive)})
	return obj
}

// MoveFunction builds the payload moving a function to unitID from the
// given date. The new unit reference runs until the latest end among the
// function's current unit references.
func MoveFunction(orig *lora.Object, unitID string, from virkning.Bound) (*lora.Object, error) {
	units := orig.Facts(lora.FuncAssociatedUnits)
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: function has no unit", ErrOldIntervalNotFound)
	}
	end := units[0].Virkning.To
	endIncluded := units[0].Virkning.ToIncluded
	for _, u := range units[1:] {
		if u.Virkning.To.After(end) {
			end, endIncluded = u.Virkning.To, u.Virkning.ToIncluded
		}
	}
	iv := virkning.Interval{From: from, FromIncluded: true, To: end, ToIncluded: endIncluded}
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	obj := &lora.Object{Note: NoteMoveEngagement}
	obj.SetFacts(lora.FuncAssociatedUnits, []lora.Fact{lora.NewFact(iv, lora.KeyUUID, unitID)})
	return obj, nil
}

// ReplaceRelationValue swaps the relation matching old for next, or drops
// it when next is nil. Matching compares values and interval bounds.
func ReplaceRelationValue(relations []lora.Fact, old lora.Fact, next *lora.Fact) ([]lora.Fact, error) {
	i := indexOf(relations, old)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrOldIntervalNotFound, old.Virkning)
	}
	out := cloneAll(relations)
	if next == nil {
		return append(out[:i], out[i+1:]...), nil
	}
	out[i] = next.Clone()
	return out, nil
}
