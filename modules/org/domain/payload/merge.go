// Package payload computes the write payloads sent to the store: merging a
// new fact version into a field's timeline, inactivating superseded spans
// and keeping untouched fields bounded to the edited window.
package payload

import (
	"errors"
	"fmt"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

var (
	ErrOverlap             = errors.New("new version overlaps an existing version")
	ErrOldIntervalNotFound = errors.New("original version not found")
)

// Merge inserts next into the versions of a single-valued field.
//
// With old set, old must be one of the stored versions; every version
// overlapping next, old included, keeps only its parts outside next. Without
// old, next is appended and must not overlap anything already stored.
func Merge(original []lora.Fact, old *lora.Fact, next lora.Fact) ([]lora.Fact, error) {
	if err := next.Virkning.Validate(); err != nil {
		return nil, err
	}
	if old == nil {
		for _, f := range original {
			if virkning.Overlaps(f.Virkning, next.Virkning) {
				return nil, fmt.Errorf("%w: %s over %s", ErrOverlap, next.Virkning, f.Virkning)
			}
		}
		out := cloneAll(original)
		if !next.Virkning.Empty() {
			out = append(out, next.Clone())
		}
		lora.SortFacts(out)
		return out, nil
	}
	if indexOf(original, *old) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrOldIntervalNotFound, old.Virkning)
	}
	return Overwrite(original, next), nil
}

// Overwrite lays next over the versions of a field. Versions overlapping
// next are cut back to the parts before and after it; the cut edges take the
// opposite inclusivity of next's edges so the pieces abut without overlap.
func Overwrite(original []lora.Fact, next lora.Fact) []lora.Fact {
	if next.Virkning.Empty() {
		out := cloneAll(original)
		lora.SortFacts(out)
		return out
	}
	before := virkning.Interval{From: virkning.NegInf, To: next.Virkning.From, ToIncluded: !next.Virkning.FromIncluded}
	after := virkning.Interval{From: next.Virkning.To, FromIncluded: !next.Virkning.ToIncluded, To: virkning.PosInf}

	out := make([]lora.Fact, 0, len(original)+2)
	for _, f := range original {
		if !virkning.Overlaps(f.Virkning, next.Virkning) {
			out = append(out, f.Clone())
			continue
		}
		if iv, ok := virkning.Intersect(f.Virkning, before); ok {
			out = append(out, f.During(iv))
		}
		if iv, ok := virkning.Intersect(f.Virkning, after); ok {
			out = append(out, f.During(iv))
		}
	}
	out = append(out, next.Clone())
	lora.SortFacts(out)
	return out
}

// VersionAt returns the version in force at instant b, if any.
func VersionAt(facts []lora.Fact, b virkning.Bound) (lora.Fact, bool) {
	if !b.IsFinite() {
		for _, f := range facts {
			if b.IsNegInf() && f.Virkning.From.IsNegInf() {
				return f, true
			}
		}
		return lora.Fact{}, false
	}
	for _, f := range facts {
		if f.Virkning.Contains(b.Time()) {
			return f, true
		}
	}
	return lora.Fact{}, false
}

// NonOverlapping reports whether no two versions share an instant.
func NonOverlapping(facts []lora.Fact) bool {
	for i := range facts {
		for j := i + 1; j < len(facts); j++ {
			if virkning.Overlaps(facts[i].Virkning, facts[j].Virkning) {
				return false
			}
		}
	}
	return true
}

func indexOf(facts []lora.Fact, target lora.Fact) int {
	for i, f := range facts {
		if f.Same(target) {
			return i
		}
	}
	return -1
}

func cloneAll(facts []lora.Fact) []lora.Fact {
	out := make([]lora.Fact, len(facts))
	for i, f := range facts {
		out[i] = f.Clone()
	}
	return out
}
