package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/dar"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/pkg/intl"
	"github.com/os2mo/mora/pkg/virkning"
)

const (
	defaultPageSize        = 2000
	defaultMaxPageSize     = 5000
	defaultTreeSearchLimit = 500
)

// SettingsRepository reads and writes the key/value settings attached to
// units. A nil unit addresses the global settings.
type SettingsRepository interface {
	UnitSettings(ctx context.Context, unitID uuid.UUID) (map[string]any, error)
	GlobalSettings(ctx context.Context) (map[string]any, error)
	SetSetting(ctx context.Context, unitID *uuid.UUID, key, value string) error
}

// ClassCache shares resolved classes between requests. A miss is reported
// through the boolean, not an error.
type ClassCache interface {
	Get(ctx context.Context, key string) (*Class, bool, error)
	Set(ctx context.Context, key string, class *Class) error
}

// AddressLookup resolves DAR addresses.
type AddressLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*dar.Address, error)
	Autocomplete(ctx context.Context, q string, municipality int) ([]dar.Suggestion, error)
}

type OrgService struct {
	repo      lora.Repository
	engine    *projection.Engine
	collator  *intl.Collator
	settings  SettingsRepository
	classes   ClassCache
	addresses AddressLookup

	pageSize        int
	maxPageSize     int
	treeSearchLimit int

	engineOpts []projection.Option
}

type Option func(*OrgService)

// WithClock replaces wall-clock time, which decides what "today" is.
func WithClock(c projection.Clock) Option {
	return func(s *OrgService) { s.engineOpts = append(s.engineOpts, projection.WithClock(c)) }
}

func WithPolicy(p projection.Policy) Option {
	return func(s *OrgService) { s.engineOpts = append(s.engineOpts, projection.WithPolicy(p)) }
}

func WithLocation(loc *time.Location) Option {
	return func(s *OrgService) { s.engineOpts = append(s.engineOpts, projection.WithLocation(loc)) }
}

func WithCollator(c *intl.Collator) Option {
	return func(s *OrgService) { s.collator = c }
}

func WithSettings(repo SettingsRepository) Option {
	return func(s *OrgService) { s.settings = repo }
}

func WithClassCache(cache ClassCache) Option {
	return func(s *OrgService) { s.classes = cache }
}

func WithAddressLookup(lookup AddressLookup) Option {
	return func(s *OrgService) { s.addresses = lookup }
}

func WithPaging(pageSize, maxPageSize int) Option {
	return func(s *OrgService) {
		s.pageSize = pageSize
		s.maxPageSize = maxPageSize
	}
}

func WithTreeSearchLimit(limit int) Option {
	return func(s *OrgService) { s.treeSearchLimit = limit }
}

func NewOrgService(repo lora.Repository, opts ...Option) *OrgService {
	s := &OrgService{
		repo:            repo,
		pageSize:        defaultPageSize,
		maxPageSize:     defaultMaxPageSize,
		treeSearchLimit: defaultTreeSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collator == nil {
		s.collator = intl.MustCollator("da")
	}
	s.engine = projection.NewEngine(append(s.engineOpts,
		projection.WithAmbiguityHook(func(f lora.Field, _ []lora.Fact) {
			recordAmbiguousCurrent(f.String())
		}),
	)...)
	return s
}

func (s *OrgService) Engine() *projection.Engine { return s.engine }
func (s *OrgService) Location() *time.Location   { return s.engine.Location() }
func (s *OrgService) Today() time.Time           { return s.engine.Today() }

// reader is the state of one read: the connector resolved for the query
// plus lookups already made while serving it.
type reader struct {
	s       *OrgService
	c       *loraclient.Connector
	classes map[uuid.UUID]*Class
	orgs    map[uuid.UUID]*Organisation
	global  map[string]any
}

func (s *OrgService) reader(q projection.Query) *reader {
	return &reader{
		s:       s,
		c:       loraclient.NewConnector(s.repo, s.engine, q),
		classes: map[uuid.UUID]*Class{},
		orgs:    map[uuid.UUID]*Organisation{},
	}
}

// current picks the version of f visible to the reader, logging when
// several versions compete for it.
func (r *reader) current(ctx context.Context, id uuid.UUID, obj *lora.Object, f lora.Field) (lora.Fact, bool, error) {
	w := r.c.Window()
	n := 0
	if w.Validity == virkning.Present {
		for _, fact := range obj.Facts(f) {
			if w.IsRelevant(fact.Virkning) {
				n++
			}
		}
	}
	if n > 1 {
		logWithFields(ctx, logrus.WarnLevel, "several versions claim the reference instant", logrus.Fields{
			"object":     id,
			"field":      f.String(),
			"candidates": n,
			"policy":     r.s.engine.Policy(),
		})
	}
	fact, ok, err := r.s.engine.Current(obj, f, w)
	if err != nil {
		return lora.Fact{}, false, mapError(err)
	}
	return fact, ok, nil
}

// picker reads one version per field.
type picker func(lora.Field) (lora.Fact, bool, error)

func (r *reader) picker(ctx context.Context, id uuid.UUID, obj *lora.Object) picker {
	return func(f lora.Field) (lora.Fact, bool, error) {
		return r.current(ctx, id, obj, f)
	}
}

// effectPicker reads from an effect snapshot, where every watched field
// has at most one version.
func effectPicker(obj *lora.Object) picker {
	return func(f lora.Field) (lora.Fact, bool, error) {
		facts := obj.Facts(f)
		if len(facts) == 0 {
			return lora.Fact{}, false, nil
		}
		return facts[0], true, nil
	}
}

func pickUUID(pick picker, f lora.Field) (uuid.UUID, error) {
	fact, ok, err := pick(f)
	if err != nil || !ok || fact.UUID() == "" {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(fact.UUID())
	if err != nil {
		return uuid.Nil, newServiceError(500, CodeInconsistentData, "invalid reference in "+f.String(), err)
	}
	return id, nil
}

func optional(values map[string]string, key string) *string {
	if v, ok := values[key]; ok && v != "" {
		return &v
	}
	return nil
}
