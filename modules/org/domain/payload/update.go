package payload

import (
	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// FieldUpdate is a new value for one field, valid over the edited window.
type FieldUpdate struct {
	Field  lora.Field
	Values map[string]string
}

// InactivateOldInterval marks the parts of old that next no longer covers
// as inactive on the given state field.
func InactivateOldInterval(old, next virkning.Interval, field lora.Field, out *lora.Object) {
	if old.From.Before(next.From) {
		out.AppendFacts(field, lora.NewFact(
			virkning.Interval{From: old.From, FromIncluded: old.FromIncluded, To: next.From, ToIncluded: !next.FromIncluded},
			lora.KeyValidity, lora.Inactive,
		))
	}
	if next.To.Before(old.To) {
		out.AppendFacts(field, lora.NewFact(
			virkning.Interval{From: next.To, FromIncluded: !next.ToIncluded, To: old.To, ToIncluded: old.ToIncluded},
			lora.KeyValidity, lora.Inactive,
		))
	}
}

// UpdatePayload merges each update, valid over next, into the field's stored
// versions. The version in force at anchor is treated as the edited one;
// with no such version the update is a pure append. Multi-valued fields get
// the new value added to their list.
func UpdatePayload(next virkning.Interval, anchor virkning.Bound, updates []FieldUpdate, original *lora.Object, out *lora.Object) error {
	for _, u := range updates {
		props := original.Facts(u.Field)
		fact := lora.Fact{Values: u.Values, Virkning: next}
		if u.Field.Cardinality() == lora.ZeroToMany {
			out.SetFacts(u.Field, append(cloneAll(props), fact.Clone()))
			continue
		}
		var old *lora.Fact
		if v, ok := VersionAt(props, anchor); ok {
			old = &v
		}
		merged, err := Merge(props, old, fact)
		if err != nil {
			return err
		}
		out.SetFacts(u.Field, merged)
	}
	return nil
}

// EnsureBounds fills the holes a single-valued field has inside next,
// unless the field is already part of out. Each hole gets a copy of the
// nearest version, preferring the one before it.
func EnsureBounds(next virkning.Interval, fields []lora.Field, original *lora.Object, out *lora.Object) {
	for _, f := range fields {
		if out.Has(f) || f.Cardinality() == lora.ZeroToMany {
			continue
		}
		props := cloneAll(original.Facts(f))
		if len(props) == 0 {
			continue
		}
		lora.SortFacts(props)
		gaps := projection.Gaps(props, next, nil)
		if len(gaps) == 0 {
			continue
		}
		for _, gap := range gaps {
			props = append(props, nearest(props, gap).During(gap))
		}
		lora.SortFacts(props)
		out.SetFacts(f, props)
	}
}

func nearest(sorted []lora.Fact, gap virkning.Interval) lora.Fact {
	var prev *lora.Fact
	for i := range sorted {
		if sorted[i].Virkning.EndsBy(gap.From) || sorted[i].Virkning.To.Equal(gap.From) {
			prev = &sorted[i]
			continue
		}
		if sorted[i].Virkning.StartsFrom(gap.To) && prev == nil {
			return sorted[i]
		}
	}
	if prev != nil {
		return *prev
	}
	return sorted[0]
}
