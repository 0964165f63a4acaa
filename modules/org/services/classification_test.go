package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/pkg/virkning"
)

func TestGetOneClass(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.GetOneClass(ctx, present(), phoneClass)
	require.NoError(t, err)
	require.Equal(t, "Telefonnummer", c.Name)
	require.Equal(t, "Telefon", c.UserKey)
	require.Equal(t, "20304060", *c.Example)
	require.Equal(t, ScopePhone, c.ScopeValue())

	c, err = svc.GetOneClass(ctx, present(), unitTypeClass)
	require.NoError(t, err)
	require.Nil(t, c.Scope)
	require.Empty(t, c.ScopeValue())

	_, err = svc.GetOneClass(ctx, present(), uuid.New())
	svcErr := requireServiceError(t, err, CodeNotFound)
	require.Contains(t, svcErr.Meta, "class_uuid")
}

func TestGetOneClassUsesSharedCache(t *testing.T) {
	t.Parallel()
	repo := &countingRepo{Repository: loadFixtures(t)}
	cache := &memoryClassCache{}
	svc := newServiceOn(repo, fixtureNow, WithClassCache(cache))
	ctx := context.Background()

	for range 3 {
		c, err := svc.GetOneClass(ctx, present(), emailClass)
		require.NoError(t, err)
		require.Equal(t, "Emailadresse", c.Name)
	}
	require.Equal(t, 1, repo.count(lora.KindClass))
	require.Equal(t, 1, cache.sets)

	// Another read window is another cache entry.
	_, err := svc.GetOneClass(ctx, presentAt("2019-01-01"), emailClass)
	require.NoError(t, err)
	require.Equal(t, 2, repo.count(lora.KindClass))
}

func TestClassesAreMemoisedPerRead(t *testing.T) {
	t.Parallel()
	repo := &countingRepo{Repository: loadFixtures(t)}
	svc := newServiceOn(repo, fixtureNow)

	// Every unit on the chain has the same type.
	unit, err := svc.GetFullUnit(context.Background(), present(), filID)
	require.NoError(t, err)
	require.Equal(t, "Afdeling", unit.Parent.OrgUnitType.Name)
	require.Equal(t, 1, repo.count(lora.KindClass))
}

func TestOrganisations(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	org, err := svc.GetOneOrganisation(ctx, present(), orgID)
	require.NoError(t, err)
	require.Equal(t, "Aarhus Universitet", org.Name)
	require.Equal(t, "AU", org.UserKey)

	_, err = svc.GetOneOrganisation(ctx, present(), uuid.New())
	requireServiceError(t, err, CodeNotFound)

	other := &lora.Object{Note: payload.NoteCreated}
	iv := payload.Validity(day("2017-01-01"), virkning.PosInf)
	other.SetFacts(lora.OrganisationProperties, []lora.Fact{lora.NewFact(iv, lora.KeyOrgName, "Aalborg Universitet", lora.KeyUserKey, "AAU")})
	other.SetFacts(lora.OrganisationValidity, []lora.Fact{lora.NewFact(iv, lora.KeyValidity, lora.Active)})
	_, err = store.Create(ctx, lora.KindOrganisation, uuid.Nil, other)
	require.NoError(t, err)

	orgs, err := svc.ListOrganisations(ctx, present())
	require.NoError(t, err)
	require.Equal(t, []string{"Aalborg Universitet", "Aarhus Universitet"},
		names(orgs, func(o *Organisation) string { return o.Name }))

	orgs, err = svc.ListOrganisations(ctx, presentAt("2016-06-01"))
	require.NoError(t, err)
	require.Len(t, orgs, 1)
}

func TestSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)
	requireServiceError(t, svc.SetSetting(ctx, nil, "show_location", "true"), CodeInvalidInput)

	settings := &memorySettings{}
	svc, _ = newTestService(t, WithSettings(settings))
	requireServiceError(t, svc.SetSetting(ctx, nil, "  ", "true"), CodeInvalidInput)
	require.NoError(t, svc.SetSetting(ctx, nil, "show_roles", "true"))
	require.NoError(t, svc.SetSetting(ctx, &humID, "show_location", "false"))
	require.NoError(t, svc.SetSetting(ctx, &filID, "show_roles", "false"))

	unit, err := svc.GetFullUnit(ctx, present(), filID)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"show_location": "false", "show_roles": "false"}, unit.UserSettings.OrgUnit)
	require.Equal(t, map[string]any{"show_location": "false", "show_roles": "true"}, unit.Parent.UserSettings.OrgUnit)
}

func TestMapError(t *testing.T) {
	t.Parallel()
	existing := invalidInput("bad")

	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"interval", fmt.Errorf("parse: %w", virkning.ErrInvalidInterval), CodeInvalidInterval, http.StatusBadRequest},
		{"overlap", payload.ErrOverlap, CodeOverlappingValidity, http.StatusBadRequest},
		{"original", payload.ErrOldIntervalNotFound, CodeOriginalEntryNotFound, http.StatusBadRequest},
		{"ambiguous", projection.ErrAmbiguousCurrent, CodeInconsistentData, http.StatusInternalServerError},
		{"conflict", lora.ErrConflict, CodeConflict, http.StatusConflict},
		{"not found", lora.ErrNotFound, CodeNotFound, http.StatusNotFound},
		{"unavailable", loraclient.ErrUnavailable, CodeStoreUnavailable, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, CodeStoreUnavailable, http.StatusBadGateway},
		{"service error", existing, CodeInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapError(tc.err)
			svcErr := requireServiceError(t, err, tc.code)
			require.Equal(t, tc.status, svcErr.Status)
		})
	}

	require.NoError(t, mapError(nil))
	plain := errors.New("boom")
	require.Same(t, plain, mapError(plain))
}
