package loraclient

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// Connector binds a repository to one read context: a validity query
// resolved against the engine's clock, plus an optional registration
// window. It is cheap to build per request.
type Connector struct {
	repo       lora.Repository
	engine     *projection.Engine
	query      projection.Query
	window     virkning.Window
	registered *virkning.Interval
}

func NewConnector(repo lora.Repository, engine *projection.Engine, q projection.Query) *Connector {
	return &Connector{repo: repo, engine: engine, query: q, window: engine.Window(q)}
}

// WithRegistrations returns a copy reading every registration overlapping iv.
func (c *Connector) WithRegistrations(iv virkning.Interval) *Connector {
	cp := *c
	cp.registered = &iv
	return &cp
}

// WithQuery returns a copy reading a different validity query.
func (c *Connector) WithQuery(q projection.Query) *Connector {
	cp := *c
	cp.query = q
	cp.window = c.engine.Window(q)
	return &cp
}

func (c *Connector) Window() virkning.Window              { return c.window }
func (c *Connector) Query() projection.Query              { return c.query }
func (c *Connector) Engine() *projection.Engine           { return c.engine }
func (c *Connector) Repository() lora.Repository          { return c.repo }
func (c *Connector) Today() time.Time                     { return c.engine.Today() }
func (c *Connector) Location() *time.Location             { return c.engine.Location() }
func (c *Connector) IsRelevant(iv virkning.Interval) bool { return c.window.IsRelevant(iv) }

func (c *Connector) Scope(kind lora.Kind) *Scope {
	return &Scope{c: c, kind: kind}
}

func (c *Connector) Organisation() *Scope     { return c.Scope(lora.KindOrganisation) }
func (c *Connector) OrganisationUnit() *Scope { return c.Scope(lora.KindOrganisationUnit) }
func (c *Connector) OrganisationFunc() *Scope { return c.Scope(lora.KindOrganisationFunc) }
func (c *Connector) User() *Scope             { return c.Scope(lora.KindUser) }
func (c *Connector) Class() *Scope            { return c.Scope(lora.KindClass) }

// Scope is a connector narrowed to one object type.
type Scope struct {
	c    *Connector
	kind lora.Kind
}

// Item is an object together with its id.
type Item struct {
	ID     uuid.UUID
	Object *lora.Object
}

func (s *Scope) Kind() lora.Kind { return s.kind }

func (s *Scope) readParams() lora.ReadParams {
	return lora.ReadParams{Validity: s.c.window.Range(), Registered: s.c.registered}
}

// Get reads one object as seen through the connector's window; nil when
// the object does not exist or has nothing relevant to the window.
func (s *Scope) Get(ctx context.Context, id uuid.UUID) (*lora.Object, error) {
	items, err := s.Load(ctx, id)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0].Object, nil
}

// Load is Get for several ids. Missing ids are skipped.
func (s *Scope) Load(ctx context.Context, ids ...uuid.UUID) ([]Item, error) {
	entries, err := s.c.repo.Fetch(ctx, s.kind, ids, s.readParams())
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(entries))
	for _, e := range entries {
		obj := s.c.engine.Restrict(e.Current(), s.c.window)
		if obj == nil || obj.Empty() {
			continue
		}
		out = append(out, Item{ID: e.ID, Object: obj})
	}
	return out, nil
}

// Query returns the ids matching filter within the window.
func (s *Scope) Query(ctx context.Context, filter lora.Filter) ([]uuid.UUID, error) {
	return s.c.repo.Search(ctx, s.kind, filter, s.readParams(), lora.Page{})
}

// QueryPage is Query with store-side paging.
func (s *Scope) QueryPage(ctx context.Context, filter lora.Filter, page lora.Page) ([]uuid.UUID, error) {
	return s.c.repo.Search(ctx, s.kind, filter, s.readParams(), page)
}

// GetAll loads every object matching filter.
func (s *Scope) GetAll(ctx context.Context, filter lora.Filter) ([]Item, error) {
	ids, err := s.Query(ctx, filter)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return s.Load(ctx, ids...)
}

// Full reads the whole timeline of an object, ignoring the window, along
// with the start of its current registration. The timestamp is the token
// to pass to UpdateIfUnchanged.
func (s *Scope) Full(ctx context.Context, id uuid.UUID) (*lora.Object, time.Time, error) {
	entries, err := s.c.repo.Fetch(ctx, s.kind, []uuid.UUID{id}, lora.CurrentRegistration(virkning.Always()))
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(entries) == 0 {
		return nil, time.Time{}, nil
	}
	reg, ok := entries[0].CurrentRegistration()
	if !ok {
		return nil, time.Time{}, nil
	}
	obj := reg.Object
	return obj.Clone(), reg.From.Timestamp.Time(), nil
}

// Registrations lists every registration of an object over its whole
// timeline, oldest first.
func (s *Scope) Registrations(ctx context.Context, id uuid.UUID) ([]lora.Registration, error) {
	entries, err := s.c.repo.Fetch(ctx, s.kind, []uuid.UUID{id}, lora.AllRegistrations())
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0].Registrations, nil
}

// GetEffects cuts an object's whole timeline into effects at the
// boundaries of the relevant fields and keeps those relevant to the window.
func (s *Scope) GetEffects(ctx context.Context, id uuid.UUID, relevant, also []lora.Field) (iter.Seq[projection.Effect], error) {
	obj, _, err := s.Full(ctx, id)
	if err != nil {
		return nil, err
	}
	window := s.c.window
	return func(yield func(projection.Effect) bool) {
		for eff := range projection.Effects(obj, relevant, also) {
			if !window.IsRelevant(eff.Interval) {
				continue
			}
			if !yield(eff) {
				return
			}
		}
	}, nil
}

func (s *Scope) Create(ctx context.Context, obj *lora.Object, id uuid.UUID) (uuid.UUID, error) {
	return s.c.repo.Create(ctx, s.kind, id, obj)
}

func (s *Scope) Update(ctx context.Context, obj *lora.Object, id uuid.UUID) (uuid.UUID, error) {
	return s.c.repo.Update(ctx, s.kind, id, obj, time.Time{})
}

// UpdateIfUnchanged writes only if the object's current registration still
// starts at token.
func (s *Scope) UpdateIfUnchanged(ctx context.Context, obj *lora.Object, id uuid.UUID, token time.Time) (uuid.UUID, error) {
	if token.IsZero() {
		return uuid.Nil, errors.New("missing registration token")
	}
	return s.c.repo.Update(ctx, s.kind, id, obj, token)
}

// Page is one slice of a listing.
type Page[T any] struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Items  []T `json:"items"`
}

// PagedGet lists the ids matching filter, loads the requested slice and
// converts each object with fn, preserving the id order of the listing.
func PagedGet[T any](ctx context.Context, s *Scope, filter lora.Filter, start, limit int, fn func(Item) (T, error)) (Page[T], error) {
	ids, err := s.Query(ctx, filter)
	if err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Total: len(ids), Offset: start, Items: []T{}}
	if start >= len(ids) {
		return page, nil
	}
	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	items, err := s.Load(ctx, ids[start:end]...)
	if err != nil {
		return Page[T]{}, err
	}
	byID := make(map[uuid.UUID]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids[start:end] {
		it, ok := byID[id]
		if !ok {
			continue
		}
		v, err := fn(it)
		if err != nil {
			return Page[T]{}, err
		}
		page.Items = append(page.Items, v)
	}
	return page, nil
}
