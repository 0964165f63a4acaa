// Package memstore is an in-process bitemporal object store with the same
// contract as the LoRa REST service. It backs the development server and
// every service test.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/pkg/virkning"
)

var _ lora.Repository = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	objects map[lora.Kind]map[uuid.UUID]*lora.Entry
	now     func() time.Time
	userRef string
	last    time.Time
}

type Option func(*Store)

// WithNow replaces the wall clock used to stamp registrations.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithUserRef sets the user reference recorded on registrations.
func WithUserRef(ref string) Option {
	return func(s *Store) { s.userRef = ref }
}

func New(opts ...Option) *Store {
	s := &Store{
		objects: map[lora.Kind]map[uuid.UUID]*lora.Entry{},
		now:     time.Now,
		userRef: uuid.Nil.String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Fetch(ctx context.Context, kind lora.Kind, ids []uuid.UUID, params lora.ReadParams) ([]lora.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]lora.Entry, 0, len(ids))
	for _, id := range ids {
		entry, ok := s.objects[kind][id]
		if !ok {
			continue
		}
		if view, ok := project(entry, params); ok {
			out = append(out, view)
		}
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, kind lora.Kind, filter lora.Filter, params lora.ReadParams, page lora.Page) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.objects[kind]))
	for id := range s.objects[kind] {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	var out []uuid.UUID
	for _, id := range ids {
		view, ok := project(s.objects[kind][id], params)
		if !ok {
			continue
		}
		for _, reg := range view.Registrations {
			if matches(id, &reg.Object, filter) {
				out = append(out, id)
				break
			}
		}
	}
	return paginate(out, page), nil
}

func (s *Store) Create(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if obj == nil {
		return uuid.Nil, fmt.Errorf("memstore: create %s without payload", kind)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.objects[kind] == nil {
		s.objects[kind] = map[uuid.UUID]*lora.Entry{}
	}
	code := lora.LifeCycleCreated
	entry, exists := s.objects[kind][id]
	if exists {
		code = lora.LifeCycleImported
	} else {
		entry = &lora.Entry{ID: id}
		s.objects[kind][id] = entry
	}
	s.register(entry, obj.Clone(), code)
	return id, nil
}

func (s *Store) Update(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object, ifUnchangedSince time.Time) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if obj == nil {
		return uuid.Nil, fmt.Errorf("memstore: update %s without payload", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.objects[kind][id]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s %s", lora.ErrNotFound, kind, id)
	}
	current, _ := entry.CurrentRegistration()
	if !ifUnchangedSince.IsZero() && !current.From.Timestamp.Time().Equal(ifUnchangedSince) {
		return uuid.Nil, fmt.Errorf("%w: %s %s", lora.ErrConflict, kind, id)
	}

	next := current.Object.Clone()
	for _, f := range obj.Fields() {
		incoming := obj.Facts(f)
		if f.Cardinality() == lora.ZeroToMany {
			next.SetFacts(f, cloneFacts(incoming))
			continue
		}
		merged := next.Facts(f)
		for _, fact := range incoming {
			merged = payload.Overwrite(merged, fact)
		}
		next.SetFacts(f, merged)
	}
	next.Note = obj.Note
	s.register(entry, next, lora.LifeCycleCorrected)
	return id, nil
}

// register closes the current registration and appends obj as the newest.
// Timestamps are kept strictly increasing so they can serve as version
// tokens even under a frozen clock.
func (s *Store) register(entry *lora.Entry, obj *lora.Object, code string) {
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts

	if n := len(entry.Registrations); n > 0 {
		entry.Registrations[n-1].To = lora.RegistrationTime{Timestamp: virkning.At(ts)}
	}
	entry.Registrations = append(entry.Registrations, lora.Registration{
		Object:        *obj,
		From:          lora.RegistrationTime{Timestamp: virkning.At(ts), Included: true},
		To:            lora.RegistrationTime{Timestamp: virkning.PosInf},
		LifeCycleCode: code,
		UserRef:       s.userRef,
	})
}

// project returns the registrations selected by params with their facts
// restricted to the validity window.
func project(entry *lora.Entry, params lora.ReadParams) (lora.Entry, bool) {
	var regs []lora.Registration
	if params.Registered == nil {
		if cur, ok := entry.CurrentRegistration(); ok {
			regs = []lora.Registration{cur}
		}
	} else {
		for _, reg := range entry.Registrations {
			span := virkning.Interval{
				From: reg.From.Timestamp, FromIncluded: true,
				To: reg.To.Timestamp,
			}
			if virkning.Overlaps(span, *params.Registered) {
				regs = append(regs, reg)
			}
		}
	}
	if len(regs) == 0 {
		return lora.Entry{}, false
	}
	out := lora.Entry{ID: entry.ID, Registrations: make([]lora.Registration, 0, len(regs))}
	for _, reg := range regs {
		restricted := restrict(&reg.Object, params.Validity)
		if restricted.Empty() && params.Registered == nil {
			return lora.Entry{}, false
		}
		reg.Object = *restricted
		out.Registrations = append(out.Registrations, reg)
	}
	return out, true
}

func restrict(obj *lora.Object, window virkning.Interval) *lora.Object {
	out := &lora.Object{Note: obj.Note}
	for _, f := range obj.Fields() {
		for _, fact := range obj.Facts(f) {
			if virkning.Overlaps(fact.Virkning, window) {
				out.AppendFacts(f, fact.Clone())
			}
		}
	}
	return out
}

func paginate(ids []uuid.UUID, page lora.Page) []uuid.UUID {
	if page.Start > 0 {
		if page.Start >= len(ids) {
			return nil
		}
		ids = ids[page.Start:]
	}
	if page.Limit > 0 && len(ids) > page.Limit {
		ids = ids[:page.Limit]
	}
	return ids
}

func cloneFacts(facts []lora.Fact) []lora.Fact {
	out := make([]lora.Fact, len(facts))
	for i, f := range facts {
		out[i] = f.Clone()
	}
	return out
}
