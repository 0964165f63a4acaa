package virkning

import (
	"fmt"
	"strings"
	"time"
)

// Validity selects which slice of an object's timeline a read returns.
type Validity string

const (
	Past    Validity = "past"
	Present Validity = "present"
	Future  Validity = "future"
)

func ParseValidity(raw string) (Validity, error) {
	switch v := Validity(strings.ToLower(strings.TrimSpace(raw))); v {
	case "":
		return Present, nil
	case Past, Present, Future:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown validity %q", ErrInvalidInterval, raw)
	}
}

// Window is a read window: a validity mode anchored at the start of the
// reference day. Present covers that day; past ends at its start; future
// begins at the following midnight.
type Window struct {
	Validity Validity
	Day      time.Time
}

// NewWindow anchors a window at the calendar day of ref in loc.
func NewWindow(validity Validity, ref time.Time, loc *time.Location) Window {
	if validity == "" {
		validity = Present
	}
	return Window{Validity: validity, Day: StartOfDay(ref, loc)}
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (w Window) nextDay() time.Time {
	return w.Day.AddDate(0, 0, 1)
}

// Range is the span handed to the store as virkningfra/virkningtil.
func (w Window) Range() Interval {
	switch w.Validity {
	case Past:
		return Interval{From: NegInf, To: At(w.Day)}
	case Future:
		return Interval{From: At(w.nextDay()), FromIncluded: true, To: PosInf}
	default:
		return Interval{From: At(w.Day), FromIncluded: true, To: At(w.nextDay())}
	}
}

// IsRelevant decides whether a fact's interval belongs to the window.
// Past keeps facts that are over by the reference day; future keeps facts
// that have not begun by the end of it.
func (w Window) IsRelevant(iv Interval) bool {
	switch w.Validity {
	case Past:
		return iv.EndsBy(At(w.Day))
	case Future:
		return iv.StartsFrom(At(w.nextDay()))
	default:
		return Overlaps(iv, w.Range())
	}
}
