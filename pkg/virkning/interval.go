// Package virkning models validity ("virkning") intervals: the time span
// during which a single version of a fact holds.
package virkning

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a validity span with explicit inclusivity flags. Intervals
// written by this system are always half-open, [from, to).
type Interval struct {
	From         Bound `json:"from"`
	FromIncluded bool  `json:"from_included"`
	To           Bound `json:"to"`
	ToIncluded   bool  `json:"to_included"`
}

// New builds the half-open interval [from, to).
func New(from, to Bound) (Interval, error) {
	iv := Interval{From: from, FromIncluded: true, To: to}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// MustNew is New for literals known to be ordered.
func MustNew(from, to Bound) Interval {
	iv, err := New(from, to)
	if err != nil {
		panic(err)
	}
	return iv
}

// Between is shorthand for [from, to) over finite instants.
func Between(from, to time.Time) (Interval, error) {
	return New(At(from), At(to))
}

// Always is (-infinity, infinity).
func Always() Interval {
	return Interval{From: NegInf, To: PosInf}
}

// Validate rejects intervals whose start lies after their end. A zero-width
// interval is accepted regardless of its flags.
func (iv Interval) Validate() error {
	if iv.From.After(iv.To) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidInterval, iv.From, iv.To)
	}
	return nil
}

// Empty reports whether no instant lies inside the interval.
func (iv Interval) Empty() bool {
	switch c := iv.From.Compare(iv.To); {
	case c > 0:
		return true
	case c == 0:
		return !iv.From.IsFinite() || !(iv.FromIncluded && iv.ToIncluded)
	default:
		return false
	}
}

func (iv Interval) Contains(t time.Time) bool {
	return iv.containsBound(At(t))
}

func (iv Interval) containsBound(b Bound) bool {
	switch c := iv.From.Compare(b); {
	case c > 0, c == 0 && !iv.FromIncluded:
		return false
	}
	switch c := b.Compare(iv.To); {
	case c > 0, c == 0 && !iv.ToIncluded:
		return false
	}
	return true
}

// Equal compares bounds and flags.
func (iv Interval) Equal(o Interval) bool {
	return iv.SameBounds(o) && iv.FromIncluded == o.FromIncluded && iv.ToIncluded == o.ToIncluded
}

// SameBounds compares the endpoints only.
func (iv Interval) SameBounds(o Interval) bool {
	return iv.From.Equal(o.From) && iv.To.Equal(o.To)
}

// Intersect returns the common part of two intervals and whether it
// contains at least one instant.
func Intersect(a, b Interval) (Interval, bool) {
	out := Interval{}
	switch c := a.From.Compare(b.From); {
	case c > 0:
		out.From, out.FromIncluded = a.From, a.FromIncluded
	case c < 0:
		out.From, out.FromIncluded = b.From, b.FromIncluded
	default:
		out.From, out.FromIncluded = a.From, a.FromIncluded && b.FromIncluded
	}
	switch c := a.To.Compare(b.To); {
	case c < 0:
		out.To, out.ToIncluded = a.To, a.ToIncluded
	case c > 0:
		out.To, out.ToIncluded = b.To, b.ToIncluded
	default:
		out.To, out.ToIncluded = a.To, a.ToIncluded && b.ToIncluded
	}
	return out, !out.Empty()
}

// Overlaps reports whether some instant lies in both intervals.
func Overlaps(a, b Interval) bool {
	_, ok := Intersect(a, b)
	return ok
}

// Covers reports whether every instant of inner also lies in outer.
func (iv Interval) Covers(inner Interval) bool {
	if inner.Empty() {
		return true
	}
	switch c := iv.From.Compare(inner.From); {
	case c > 0, c == 0 && inner.FromIncluded && !iv.FromIncluded:
		return false
	}
	switch c := inner.To.Compare(iv.To); {
	case c > 0, c == 0 && inner.ToIncluded && !iv.ToIncluded:
		return false
	}
	return true
}

// EndsBy reports whether the interval is over at the instant ref.
func (iv Interval) EndsBy(ref Bound) bool {
	c := iv.To.Compare(ref)
	return c < 0 || (c == 0 && !iv.ToIncluded)
}

// StartsFrom reports whether the interval has not begun before ref.
func (iv Interval) StartsFrom(ref Bound) bool {
	return iv.From.Compare(ref) >= 0
}

// WithFrom replaces the start, leaving the end untouched.
func (iv Interval) WithFrom(from Bound, included bool) Interval {
	iv.From, iv.FromIncluded = from, included
	return iv
}

// WithTo replaces the end, leaving the start untouched.
func (iv Interval) WithTo(to Bound, included bool) Interval {
	iv.To, iv.ToIncluded = to, included
	return iv
}

func (iv Interval) String() string {
	open, closing := "(", ")"
	if iv.FromIncluded {
		open = "["
	}
	if iv.ToIncluded {
		closing = "]"
	}
	return open + iv.From.String() + ", " + iv.To.String() + closing
}

type intervalJSON struct {
	From         Bound `json:"from"`
	FromIncluded *bool `json:"from_included,omitempty"`
	To           Bound `json:"to"`
	ToIncluded   *bool `json:"to_included,omitempty"`
}

// UnmarshalJSON defaults missing flags to the half-open convention.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, err)
	}
	out := Interval{From: raw.From, FromIncluded: true, To: raw.To}
	if raw.FromIncluded != nil {
		out.FromIncluded = *raw.FromIncluded
	}
	if raw.ToIncluded != nil {
		out.ToIncluded = *raw.ToIncluded
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*iv = out
	return nil
}

type intervalYAML struct {
	From         Bound `yaml:"from"`
	FromIncluded *bool `yaml:"from_included"`
	To           Bound `yaml:"to"`
	ToIncluded   *bool `yaml:"to_included"`
}

func (iv Interval) MarshalYAML() (any, error) {
	from, to := iv.FromIncluded, iv.ToIncluded
	return intervalYAML{From: iv.From, FromIncluded: &from, To: iv.To, ToIncluded: &to}, nil
}

func (iv *Interval) UnmarshalYAML(unmarshal func(any) error) error {
	var raw intervalYAML
	if err := unmarshal(&raw); err != nil {
		return err
	}
	out := Interval{From: raw.From, FromIncluded: true, To: raw.To}
	if raw.FromIncluded != nil {
		out.FromIncluded = *raw.FromIncluded
	}
	if raw.ToIncluded != nil {
		out.ToIncluded = *raw.ToIncluded
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*iv = out
	return nil
}
