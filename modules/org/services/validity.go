package services

import (
	"time"

	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// Validity is an interval as the API sees it: calendar dates with an
// inclusive end. A nil end is open; a nil start means since forever.
type Validity struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

func stringRef(s string) *string { return &s }

// validityOf renders an interval with its end moved back onto the last
// day it covers.
func (s *OrgService) validityOf(iv virkning.Interval) Validity {
	loc := s.Location()
	var v Validity
	if iv.From.IsFinite() {
		v.From = stringRef(iv.From.Date(loc))
	}
	if iv.To.IsFinite() {
		end := iv.To.Time()
		if !iv.ToIncluded {
			end = end.Add(-time.Microsecond)
		}
		v.To = stringRef(end.In(loc).Format(time.DateOnly))
	}
	return v
}

// parseDate reads a date or timestamp and returns the start of its day.
func (s *OrgService) parseDate(raw string) (virkning.Bound, error) {
	b, err := virkning.ParseBound(raw, s.Location())
	if err != nil || !b.IsFinite() {
		return b, err
	}
	return virkning.At(virkning.StartOfDay(b.Time(), s.Location())), nil
}

func (s *OrgService) parseFrom(raw *string) (virkning.Bound, error) {
	if raw == nil || *raw == "" {
		return virkning.Bound{}, invalidInput("missing validity.from")
	}
	b, err := s.parseDate(*raw)
	if err != nil {
		return b, mapError(err)
	}
	return b, nil
}

// parseTo turns an inclusive end date into the exclusive bound stored.
func (s *OrgService) parseTo(raw *string) (virkning.Bound, error) {
	if raw == nil || *raw == "" {
		return virkning.PosInf, nil
	}
	b, err := s.parseDate(*raw)
	if err != nil {
		return b, mapError(err)
	}
	return b.AddDate(0, 0, 1), nil
}

func (s *OrgService) parseInterval(v Validity) (virkning.Interval, error) {
	from, err := s.parseFrom(v.From)
	if err != nil {
		return virkning.Interval{}, err
	}
	to, err := s.parseTo(v.To)
	if err != nil {
		return virkning.Interval{}, err
	}
	iv := payload.Validity(from, to)
	if err := iv.Validate(); err != nil {
		return virkning.Interval{}, mapError(err)
	}
	return iv, nil
}

// ParseQuery reads the "at" and "validity" request parameters.
func (s *OrgService) ParseQuery(at, validity string) (projection.Query, error) {
	v, err := virkning.ParseValidity(validity)
	if err != nil {
		return projection.Query{}, mapError(err)
	}
	q := projection.Query{Validity: v}
	if at == "" {
		return q, nil
	}
	b, err := s.parseDate(at)
	if err != nil {
		return projection.Query{}, mapError(err)
	}
	if !b.IsFinite() {
		return projection.Query{}, invalidInput("effective date must be finite")
	}
	q.EffectiveDate = b.Time()
	return q, nil
}

// at is the present query anchored at b.
func at(b virkning.Bound) projection.Query {
	return projection.Query{Validity: virkning.Present, EffectiveDate: b.Time()}
}
