// Package projection turns bitemporal objects into the view a reader asked
// for: restricted to a validity window, collapsed to current values, or cut
// into effects.
package projection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/pkg/virkning"
)

var ErrAmbiguousCurrent = errors.New("more than one current value")

// Policy decides what happens when several versions of a single-valued
// field overlap the read window.
type Policy string

const (
	LastWins Policy = "last-wins"
	Strict   Policy = "strict"
)

func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return LastWins, nil
	case LastWins, Strict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ambiguity policy %q", raw)
	}
}

// Query names what a read should see. A zero EffectiveDate means "today"
// according to the engine's clock.
type Query struct {
	Validity      virkning.Validity
	EffectiveDate time.Time
}

type Engine struct {
	clock       Clock
	policy      Policy
	loc         *time.Location
	onAmbiguous func(field lora.Field, candidates []lora.Fact)
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithAmbiguityHook is called whenever LastWins had to pick a value.
func WithAmbiguityHook(fn func(lora.Field, []lora.Fact)) Option {
	return func(e *Engine) { e.onAmbiguous = fn }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: SystemClock{}, policy: LastWins, loc: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Location() *time.Location { return e.loc }
func (e *Engine) Clock() Clock             { return e.clock }
func (e *Engine) Policy() Policy           { return e.policy }

// Today is the start of the current day in the engine's location.
func (e *Engine) Today() time.Time {
	return virkning.StartOfDay(e.clock.Now(), e.loc)
}

// Window resolves a query against the clock. Resolution depends only on
// the effective date, so a frozen clock and an explicit date agree.
func (e *Engine) Window(q Query) virkning.Window {
	ref := q.EffectiveDate
	if ref.IsZero() {
		ref = e.clock.Now()
	}
	return virkning.NewWindow(q.Validity, ref, e.loc)
}

// Restrict returns a copy of obj holding only the facts relevant to w.
// Fields left without facts are dropped.
func (e *Engine) Restrict(obj *lora.Object, w virkning.Window) *lora.Object {
	if obj == nil {
		return nil
	}
	out := &lora.Object{Note: obj.Note}
	for _, f := range obj.Fields() {
		var kept []lora.Fact
		for _, fact := range obj.Facts(f) {
			if w.IsRelevant(fact.Virkning) {
				kept = append(kept, fact.Clone())
			}
		}
		if len(kept) > 0 {
			out.SetFacts(f, kept)
		}
	}
	return out
}

// Current picks the single version of field f visible in w.
// The boolean is false when the field has no relevant version.
func (e *Engine) Current(obj *lora.Object, f lora.Field, w virkning.Window) (lora.Fact, bool, error) {
	var candidates []lora.Fact
	for _, fact := range obj.Facts(f) {
		if w.IsRelevant(fact.Virkning) {
			candidates = append(candidates, fact)
		}
	}
	switch len(candidates) {
	case 0:
		return lora.Fact{}, false, nil
	case 1:
		return candidates[0], true, nil
	}
	lora.SortFacts(candidates)
	// Past and future windows span many instants; only a present window
	// has a single instant the versions can compete for.
	if w.Validity != virkning.Present {
		return candidates[len(candidates)-1], true, nil
	}
	if e.policy == Strict {
		return lora.Fact{}, false, fmt.Errorf("%w: %s has %d versions in window", ErrAmbiguousCurrent, f, len(candidates))
	}
	if e.onAmbiguous != nil {
		e.onAmbiguous(f, candidates)
	}
	return candidates[len(candidates)-1], true, nil
}

// CurrentValue is Current reduced to one key of the winning version.
func (e *Engine) CurrentValue(obj *lora.Object, f lora.Field, key string, w virkning.Window) (string, error) {
	fact, ok, err := e.Current(obj, f, w)
	if err != nil || !ok {
		return "", err
	}
	return fact.Get(key), nil
}
