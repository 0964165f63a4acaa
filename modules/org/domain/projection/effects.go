package projection

import (
	"iter"
	"slices"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

// Effect is a maximal span over which none of the watched fields changes,
// with the facts in force during it.
type Effect struct {
	Interval virkning.Interval
	Object   *lora.Object
}

// Effects cuts obj into effects at every boundary of the relevant fields.
// Facts of the also fields ride along but do not introduce boundaries.
// Spans where no relevant field has a value are skipped. The sequence is
// computed lazily and can be walked once or many times.
func Effects(obj *lora.Object, relevant, also []lora.Field) iter.Seq[Effect] {
	return func(yield func(Effect) bool) {
		if obj == nil {
			return
		}
		bounds := boundaries(obj, relevant)
		for i := 0; i+1 < len(bounds); i++ {
			span := virkning.Interval{From: bounds[i], FromIncluded: true, To: bounds[i+1]}
			if span.Empty() {
				continue
			}
			snap, ok := snapshot(obj, span, relevant, also)
			if !ok {
				continue
			}
			if !yield(Effect{Interval: span, Object: snap}) {
				return
			}
		}
	}
}

func boundaries(obj *lora.Object, fields []lora.Field) []virkning.Bound {
	var out []virkning.Bound
	for _, f := range fields {
		for _, fact := range obj.Facts(f) {
			out = append(out, fact.Virkning.From, fact.Virkning.To)
		}
	}
	slices.SortFunc(out, func(a, b virkning.Bound) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b virkning.Bound) bool { return a.Equal(b) })
}

func snapshot(obj *lora.Object, span virkning.Interval, relevant, also []lora.Field) (*lora.Object, bool) {
	out := &lora.Object{Note: obj.Note}
	found := false
	collect := func(fields []lora.Field, counts bool) {
		for _, f := range fields {
			for _, fact := range obj.Facts(f) {
				if virkning.Overlaps(fact.Virkning, span) {
					out.AppendFacts(f, fact.Clone())
					if counts {
						found = true
					}
				}
			}
		}
	}
	collect(relevant, true)
	collect(also, false)
	return out, found
}
