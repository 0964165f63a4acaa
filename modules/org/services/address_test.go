package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/infrastructure/dar"
)

func TestGetAddresses(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	addrs, err := svc.GetAddresses(context.Background(), present(), OwnerUnit, rootID)
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	phone := addrs[0]
	require.Equal(t, "8715 0000", phone.Name)
	require.Equal(t, "+4587150000", phone.Value)
	require.Equal(t, "tel:+4587150000", *phone.Href)
	require.Equal(t, "Telefonnummer", phone.AddressType.Name)
	require.Equal(t, "2016-01-01", *phone.Validity.From)
	require.Nil(t, phone.Validity.To)

	email := addrs[1]
	require.Equal(t, "info@example.dk", email.Name)
	require.Equal(t, "mailto:info@example.dk", *email.Href)

	_, err = svc.GetAddresses(context.Background(), present(), OwnerUnit, uuid.New())
	requireServiceError(t, err, CodeOrgUnitNotFound)
	_, err = svc.GetAddresses(context.Background(), present(), AddressOwner("x"), rootID)
	requireServiceError(t, err, CodeInvalidInput)
}

func TestGetAddressesResolvesDAR(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)
	addrs, err := svc.GetAddresses(ctx, present(), OwnerUnit, humID)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.Equal(t, humAddress.String(), addrs[0].Name, "unresolved without a lookup")
	require.Nil(t, addrs[0].Href)

	lookup := &stubAddresses{addresses: map[uuid.UUID]*dar.Address{
		humAddress: {ID: humAddress, Name: "Nordre Ringgade 1, 8000 Aarhus C", Href: "https://www.openstreetmap.org/?mlon=10.2&mlat=56.17"},
	}}
	svc, _ = newTestService(t, WithAddressLookup(lookup))
	addrs, err = svc.GetAddresses(ctx, present(), OwnerUnit, humID)
	require.NoError(t, err)
	require.Equal(t, "Nordre Ringgade 1, 8000 Aarhus C", addrs[0].Name)
	require.Equal(t, humAddress.String(), addrs[0].Value)
	require.Contains(t, *addrs[0].Href, "openstreetmap")
	require.Equal(t, ScopeDAR, addrs[0].AddressType.ScopeValue())
}

func TestAddAddress(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAddress(ctx, filID, AddressInput{AddressType: phoneClass, Value: " 20 30 40 60"}, dates("2018-06-01", "")))
	obj := fullObject(t, store, lora.KindOrganisationUnit, filID)
	require.Equal(t, payload.NoteAddAddress, obj.Note)

	addrs, err := svc.GetAddresses(ctx, present(), OwnerUnit, filID)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.Equal(t, "+4520304060", addrs[0].Value)
	require.Equal(t, "2030 4060", addrs[0].Name)

	err = svc.AddAddress(ctx, filID, AddressInput{AddressType: darClass, Value: "not-a-uuid"}, dates("2018-06-01", ""))
	requireServiceError(t, err, CodeInvalidInput)
	err = svc.AddAddress(ctx, filID, AddressInput{AddressType: uuid.New(), Value: "x"}, dates("2018-06-01", ""))
	requireServiceError(t, err, CodeNotFound)
	err = svc.AddAddress(ctx, histID, AddressInput{AddressType: emailClass, Value: "a@b.dk"}, dates("2018-06-01", ""))
	requireServiceError(t, err, CodeDateOutsideOrgUnitRange)
}

func TestEditAddress(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	var edit AddressEdit
	requireServiceError(t, svc.EditAddress(ctx, rootID, edit), CodeInvalidInput)

	edit.Original = &struct {
		AddressType uuid.UUID `json:"address_type"`
		Value       string    `json:"value"`
		Validity    Validity  `json:"validity"`
	}{AddressType: phoneClass, Value: "+4587150000", Validity: dates("2016-01-01", "")}
	value := "87 15 99 99"
	edit.Data.Value = &value
	require.NoError(t, svc.EditAddress(ctx, rootID, edit))

	addrs, err := svc.GetAddresses(ctx, present(), OwnerUnit, rootID)
	require.NoError(t, err)
	require.Equal(t, []string{"8715 9999", "info@example.dk"}, names(addrs, func(a Address) string { return a.Name }))

	// The stored value no longer matches the original.
	requireServiceError(t, svc.EditAddress(ctx, rootID, edit), CodeOriginalEntryNotFound)
}

func TestAddressAutocomplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newTestService(t)
	_, err := svc.AddressAutocomplete(ctx, orgID, "Nordre", false)
	svcErr := requireServiceError(t, err, CodeStoreUnavailable)
	require.Equal(t, 502, svcErr.Status)

	lookup := &stubAddresses{suggestions: []dar.Suggestion{{ID: humAddress, Name: "Nordre Ringgade 1"}}}
	svc, _ = newTestService(t, WithAddressLookup(lookup))
	hits, err := svc.AddressAutocomplete(ctx, orgID, "Nordre", false)
	require.NoError(t, err)
	require.Equal(t, 751, lookup.municipality)
	require.Equal(t, "Nordre", lookup.query)
	require.Len(t, hits, 1)
	location := hits[0]["location"].(map[string]any)
	require.Equal(t, humAddress, location["uuid"])

	_, err = svc.AddressAutocomplete(ctx, orgID, "Nordre", true)
	require.NoError(t, err)
	require.Zero(t, lookup.municipality)

	_, err = svc.AddressAutocomplete(ctx, uuid.New(), "Nordre", false)
	requireServiceError(t, err, CodeNotFound)
}
