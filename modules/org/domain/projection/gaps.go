package projection

import (
	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

// Gaps lists the parts of within not covered by any fact satisfying keep.
// A nil keep accepts every fact.
func Gaps(facts []lora.Fact, within virkning.Interval, keep func(lora.Fact) bool) []virkning.Interval {
	var covering []lora.Fact
	for _, f := range facts {
		if keep == nil || keep(f) {
			covering = append(covering, f)
		}
	}
	lora.SortFacts(covering)

	var gaps []virkning.Interval
	cursor, cursorIncluded := within.From, within.FromIncluded
	for _, f := range covering {
		iv, ok := virkning.Intersect(f.Virkning, within)
		if !ok {
			continue
		}
		if cursor.Before(iv.From) || (cursor.Equal(iv.From) && cursorIncluded && !iv.FromIncluded && cursor.IsFinite()) {
			gap := virkning.Interval{From: cursor, FromIncluded: cursorIncluded, To: iv.From, ToIncluded: !iv.FromIncluded}
			if !gap.Empty() {
				gaps = append(gaps, gap)
			}
		}
		if iv.To.After(cursor) || (iv.To.Equal(cursor) && iv.ToIncluded) {
			cursor, cursorIncluded = iv.To, !iv.ToIncluded
		}
	}
	tail := virkning.Interval{From: cursor, FromIncluded: cursorIncluded, To: within.To, ToIncluded: within.ToIncluded}
	if !tail.Empty() {
		gaps = append(gaps, tail)
	}
	return gaps
}

// Covered reports whether facts satisfying keep span all of within.
func Covered(facts []lora.Fact, within virkning.Interval, keep func(lora.Fact) bool) bool {
	return len(Gaps(facts, within, keep)) == 0
}

// HasValue builds a keep predicate matching key=value.
func HasValue(key, value string) func(lora.Fact) bool {
	return func(f lora.Fact) bool { return f.Get(key) == value }
}
