// Package lora holds the bitemporal object model of the LoRa store:
// objects made of versioned facts on three axes, and their registrations.
package lora

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/os2mo/mora/pkg/virkning"
)

type Axis string

const (
	Attributes Axis = "attributter"
	Relations  Axis = "relationer"
	States     Axis = "tilstande"
)

var AllAxes = []Axis{Attributes, Relations, States}

// Object is the payload of a registration: every field on every axis as a
// list of fact versions.
type Object struct {
	Attributes map[string][]Fact `json:"attributter,omitempty" yaml:"attributter,omitempty"`
	Relations  map[string][]Fact `json:"relationer,omitempty" yaml:"relationer,omitempty"`
	States     map[string][]Fact `json:"tilstande,omitempty" yaml:"tilstande,omitempty"`
	Note       string            `json:"note,omitempty" yaml:"note,omitempty"`
}

func (o *Object) axis(a Axis, create bool) map[string][]Fact {
	var m *map[string][]Fact
	switch a {
	case Attributes:
		m = &o.Attributes
	case Relations:
		m = &o.Relations
	case States:
		m = &o.States
	default:
		return nil
	}
	if *m == nil && create {
		*m = map[string][]Fact{}
	}
	return *m
}

// Facts returns the versions of f, or nil.
func (o *Object) Facts(f Field) []Fact {
	if o == nil {
		return nil
	}
	return o.axis(f.Axis, false)[f.Name]
}

// SetFacts replaces the versions of f.
func (o *Object) SetFacts(f Field, facts []Fact) {
	o.axis(f.Axis, true)[f.Name] = facts
}

// AppendFacts adds versions to f.
func (o *Object) AppendFacts(f Field, facts ...Fact) {
	m := o.axis(f.Axis, true)
	m[f.Name] = append(m[f.Name], facts...)
}

func (o *Object) Has(f Field) bool {
	return len(o.Facts(f)) > 0
}

// Fields lists every populated field in axis order, names sorted.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	var out []Field
	for _, a := range AllAxes {
		m := o.axis(a, false)
		for _, name := range slices.Sorted(maps.Keys(m)) {
			out = append(out, Field{Axis: a, Name: name})
		}
	}
	return out
}

// Each visits every fact, allowing in-place replacement.
func (o *Object) Each(fn func(Field, *Fact)) {
	for _, f := range o.Fields() {
		facts := o.Facts(f)
		for i := range facts {
			fn(f, &facts[i])
		}
	}
}

// UUIDs collects the distinct targets of a relation field.
func (o *Object) UUIDs(f Field) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, fact := range o.Facts(f) {
		id := fact.UUID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := &Object{Note: o.Note}
	for _, f := range o.Fields() {
		src := o.Facts(f)
		dst := make([]Fact, len(src))
		for i, fact := range src {
			dst[i] = fact.Clone()
		}
		out.SetFacts(f, dst)
	}
	return out
}

// Empty reports whether the object carries no facts at all.
func (o *Object) Empty() bool {
	return len(o.Fields()) == 0
}

// Span is the hull of every fact interval in the object.
func (o *Object) Span() (virkning.Interval, bool) {
	var (
		out   virkning.Interval
		found bool
	)
	o.Each(func(_ Field, f *Fact) {
		if !found {
			out, found = f.Virkning, true
			return
		}
		if f.Virkning.From.Before(out.From) {
			out = out.WithFrom(f.Virkning.From, f.Virkning.FromIncluded)
		}
		if f.Virkning.To.After(out.To) {
			out = out.WithTo(f.Virkning.To, f.Virkning.ToIncluded)
		}
	})
	return out, found
}

// RegistrationTime is one end of a registration's transaction-time span.
type RegistrationTime struct {
	Timestamp virkning.Bound `json:"tidsstempeldatotid" yaml:"tidsstempeldatotid"`
	Included  bool           `json:"graenseindikator" yaml:"graenseindikator"`
}

// Registration is one transaction-time version of an object.
type Registration struct {
	Object        `yaml:",inline"`
	From          RegistrationTime `json:"fratidspunkt" yaml:"fratidspunkt"`
	To            RegistrationTime `json:"tiltidspunkt" yaml:"tiltidspunkt"`
	LifeCycleCode string           `json:"livscykluskode,omitempty" yaml:"livscykluskode,omitempty"`
	UserRef       string           `json:"brugerref,omitempty" yaml:"brugerref,omitempty"`
}

// Life cycle codes written by the store.
const (
	LifeCycleCreated    = "Opstaaet"
	LifeCycleImported   = "Importeret"
	LifeCyclePassivated = "Passiveret"
	LifeCycleDeleted    = "Slettet"
	LifeCycleCorrected  = "Rettet"
)

// Entry is an object id with its registrations, newest last.
type Entry struct {
	ID            uuid.UUID      `json:"id" yaml:"id"`
	Registrations []Registration `json:"registreringer" yaml:"registreringer"`
}

// Current returns the newest registration's object.
func (e Entry) Current() *Object {
	if len(e.Registrations) == 0 {
		return nil
	}
	obj := e.Registrations[len(e.Registrations)-1].Object
	return &obj
}

// CurrentRegistration returns the newest registration.
func (e Entry) CurrentRegistration() (Registration, bool) {
	if len(e.Registrations) == 0 {
		return Registration{}, false
	}
	return e.Registrations[len(e.Registrations)-1], true
}
