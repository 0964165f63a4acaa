package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/dar"
	"github.com/os2mo/mora/modules/org/infrastructure/memstore"
	"github.com/os2mo/mora/pkg/virkning"
)

// Objects in testdata/fixtures.yaml.
var (
	orgID           = uuid.MustParse("456362c4-0ee4-4e5e-a72c-751239745e62")
	rootID          = uuid.MustParse("2874e1dc-85e6-4269-823a-e1125484dfd3")
	humID           = uuid.MustParse("9d07123e-47ac-4a9a-88c8-da82e3a4bc9e")
	filID           = uuid.MustParse("85715fc7-925d-401b-822d-467eb4b163b6")
	histID          = uuid.MustParse("da77153e-30f3-4dc2-a611-ee912a28d8aa")
	samfID          = uuid.MustParse("b688513d-11f7-4efc-b679-ab082a2055d0")
	statID          = uuid.MustParse("e1b5e2a0-5a8f-4a37-9a1b-2d3c4e5f6a7b")
	oerstedID       = uuid.MustParse("a1d4dabc-5cae-4ba6-a4de-f2a6c1d0d4a6")
	aalID           = uuid.MustParse("04c78fc2-72d2-4d02-b55f-807af19eac48")
	andersID        = uuid.MustParse("53181ed2-f1de-4c4a-a8fd-ab358c2c454a")
	endedEngagement = uuid.MustParse("d000591f-8705-4324-897a-075e3623f37b")
	filEngagement   = uuid.MustParse("301a906b-ef51-4d5c-9c77-386fb8410459")
	unitTypeClass   = uuid.MustParse("32547559-cfc1-4d97-94c6-70b192eff825")
	emailClass      = uuid.MustParse("c8a49f1b-fb39-4ce3-bdd0-b3b907262db3")
	phoneClass      = uuid.MustParse("1d1d3711-5af4-4084-99b3-df2b8752fdec")
	darClass        = uuid.MustParse("4e337d8e-1fd2-4449-8110-e0c8a22958ed")
	humAddress      = uuid.MustParse("0a3f50a0-23c9-32b8-e044-0003ba298018")
)

var fixtureNow = time.Date(2018, 6, 1, 9, 0, 0, 0, time.UTC)

func loadFixtures(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New(memstore.WithNow(func() time.Time { return fixtureNow }))
	n, err := store.LoadFile(context.Background(), "testdata/fixtures.yaml")
	require.NoError(t, err)
	require.Positive(t, n)
	return store
}

// newTestService serves the fixtures as of fixtureNow, with dates in UTC.
func newTestService(t *testing.T, opts ...Option) (*OrgService, *memstore.Store) {
	t.Helper()
	store := loadFixtures(t)
	return newServiceOn(store, fixtureNow, opts...), store
}

func newServiceOn(repo lora.Repository, now time.Time, opts ...Option) *OrgService {
	base := []Option{
		WithClock(projection.FixedClock(now)),
		WithLocation(time.UTC),
	}
	return NewOrgService(repo, append(base, opts...)...)
}

func present() projection.Query {
	return projection.Query{Validity: virkning.Present}
}

func presentAt(date string) projection.Query {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		panic(err)
	}
	return projection.Query{Validity: virkning.Present, EffectiveDate: d}
}

func dates(from, to string) Validity {
	v := Validity{From: stringRef(from)}
	if to != "" {
		v.To = stringRef(to)
	}
	return v
}

func requireServiceError(t *testing.T, err error, code string) *ServiceError {
	t.Helper()
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, code, svcErr.Code, svcErr.Message)
	return svcErr
}

// fullObject reads the whole current registration of an object.
func fullObject(t *testing.T, store *memstore.Store, kind lora.Kind, id uuid.UUID) *lora.Object {
	t.Helper()
	entries, err := store.Fetch(context.Background(), kind, []uuid.UUID{id}, lora.CurrentRegistration(virkning.Always()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0].Current()
}

type memorySettings struct {
	mu     sync.Mutex
	global map[string]any
	units  map[uuid.UUID]map[string]any
}

func (m *memorySettings) UnitSettings(_ context.Context, id uuid.UUID) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[id], nil
}

func (m *memorySettings) GlobalSettings(context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global, nil
}

func (m *memorySettings) SetSetting(_ context.Context, id *uuid.UUID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == nil {
		if m.global == nil {
			m.global = map[string]any{}
		}
		m.global[key] = value
		return nil
	}
	if m.units == nil {
		m.units = map[uuid.UUID]map[string]any{}
	}
	if m.units[*id] == nil {
		m.units[*id] = map[string]any{}
	}
	m.units[*id][key] = value
	return nil
}

type memoryClassCache struct {
	entries map[string]*Class
	sets    int
}

func (m *memoryClassCache) Get(_ context.Context, key string) (*Class, bool, error) {
	c, ok := m.entries[key]
	return c, ok, nil
}

func (m *memoryClassCache) Set(_ context.Context, key string, c *Class) error {
	if m.entries == nil {
		m.entries = map[string]*Class{}
	}
	m.entries[key] = c
	m.sets++
	return nil
}

type stubAddresses struct {
	addresses    map[uuid.UUID]*dar.Address
	suggestions  []dar.Suggestion
	municipality int
	query        string
}

func (s *stubAddresses) Get(_ context.Context, id uuid.UUID) (*dar.Address, error) {
	if a, ok := s.addresses[id]; ok {
		return a, nil
	}
	return nil, dar.ErrNotFound
}

func (s *stubAddresses) Autocomplete(_ context.Context, q string, municipality int) ([]dar.Suggestion, error) {
	s.query, s.municipality = q, municipality
	return s.suggestions, nil
}

// countingRepo counts reads per object type.
type countingRepo struct {
	lora.Repository
	mu      sync.Mutex
	fetches map[lora.Kind]int
}

func (c *countingRepo) Fetch(ctx context.Context, kind lora.Kind, ids []uuid.UUID, params lora.ReadParams) ([]lora.Entry, error) {
	c.mu.Lock()
	if c.fetches == nil {
		c.fetches = map[lora.Kind]int{}
	}
	c.fetches[kind]++
	c.mu.Unlock()
	return c.Repository.Fetch(ctx, kind, ids, params)
}

func (c *countingRepo) count(kind lora.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[kind]
}

func day(s string) virkning.Bound {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return virkning.At(t)
}

// fullToken is the start of an object's current registration.
func fullToken(t *testing.T, store *memstore.Store, id uuid.UUID) time.Time {
	t.Helper()
	entries, err := store.Fetch(context.Background(), lora.KindOrganisationUnit, []uuid.UUID{id}, lora.CurrentRegistration(virkning.Always()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	reg, ok := entries[0].CurrentRegistration()
	require.True(t, ok)
	return reg.From.Timestamp.Time()
}
