package virkning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	negInfText = "-infinity"
	posInfText = "infinity"
)

// Bound is one end of an Interval. It is either a finite instant or one of
// the two infinity sentinels; the sentinels compare outside every instant.
type Bound struct {
	t   time.Time
	inf int8
}

var (
	NegInf = Bound{inf: -1}
	PosInf = Bound{inf: 1}
)

func At(t time.Time) Bound {
	return Bound{t: t}
}

func (b Bound) IsNegInf() bool  { return b.inf < 0 }
func (b Bound) IsPosInf() bool  { return b.inf > 0 }
func (b Bound) IsFinite() bool  { return b.inf == 0 }
func (b Bound) Time() time.Time { return b.t }

func (b Bound) Compare(o Bound) int {
	switch {
	case b.inf != o.inf:
		if b.inf < o.inf {
			return -1
		}
		return 1
	case b.inf != 0:
		return 0
	default:
		return b.t.Compare(o.t)
	}
}

func (b Bound) Before(o Bound) bool { return b.Compare(o) < 0 }
func (b Bound) After(o Bound) bool  { return b.Compare(o) > 0 }
func (b Bound) Equal(o Bound) bool  { return b.Compare(o) == 0 }

// AddDate shifts a finite bound; the sentinels are returned unchanged.
func (b Bound) AddDate(years, months, days int) Bound {
	if !b.IsFinite() {
		return b
	}
	return At(b.t.AddDate(years, months, days))
}

func (b Bound) String() string {
	switch {
	case b.IsNegInf():
		return negInfText
	case b.IsPosInf():
		return posInfText
	default:
		return b.t.Format(time.RFC3339)
	}
}

// Date renders the bound as a calendar date in loc, or "" for the sentinels.
func (b Bound) Date(loc *time.Location) string {
	if !b.IsFinite() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return b.t.In(loc).Format(time.DateOnly)
}

var boundLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseBound reads the textual forms produced by the store: the infinity
// sentinels, timestamps with or without an offset, and plain dates.
// Values without an offset are interpreted in loc.
func ParseBound(raw string, loc *time.Location) (Bound, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case negInfText:
		return NegInf, nil
	case posInfText, "+infinity":
		return PosInf, nil
	case "":
		return Bound{}, fmt.Errorf("%w: empty bound", ErrInvalidInterval)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range boundLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return At(t), nil
		}
	}
	return Bound{}, fmt.Errorf("%w: unparseable bound %q", ErrInvalidInterval, raw)
}

func (b Bound) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Bound) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: bound must be a string", ErrInvalidInterval)
	}
	parsed, err := ParseBound(raw, time.UTC)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b Bound) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b *Bound) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseBound(raw, time.UTC)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
