package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

func TestCreateOrgUnit(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateOrgUnit(ctx, CreateOrgUnitRequest{
		Name:        "Ny enhed",
		Parent:      humID,
		OrgUnitType: &unitTypeClass,
		Addresses:   []AddressInput{{AddressType: emailClass, Value: "ny@example.dk"}},
		Validity:    dates("2018-06-01", ""),
	})
	require.NoError(t, err)

	unit, err := svc.GetSelfUnit(ctx, present(), id)
	require.NoError(t, err)
	require.Equal(t, "Ny enhed", unit.Name)
	require.True(t, strings.HasPrefix(unit.UserKey, "Ny enhed "))
	require.Equal(t, "Humanistisk fakultet", unit.Parent.Name)
	require.Equal(t, orgID, unit.Org.UUID)
	require.Equal(t, "Afdeling", unit.OrgUnitType.Name)

	obj := fullObject(t, store, lora.KindOrganisationUnit, id)
	require.Equal(t, payload.NoteCreated, obj.Note)
	addrs := obj.Facts(lora.OrgUnitAddresses)
	require.Len(t, addrs, 1)
	require.Equal(t, "urn:mailto:ny@example.dk", addrs[0].Get(lora.KeyURN))

	fixed := uuid.New()
	id, err = svc.CreateOrgUnit(ctx, CreateOrgUnitRequest{
		UUID:     &fixed,
		Name:     "Topenhed",
		UserKey:  "top",
		Parent:   orgID,
		Validity: dates("2018-06-01", "2018-12-31"),
	})
	require.NoError(t, err)
	require.Equal(t, fixed, id)
	top, err := svc.GetChildren(ctx, present(), ParentOrganisation, orgID)
	require.NoError(t, err)
	require.Len(t, top, 2)
}

func TestCreateOrgUnitValidation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateOrgUnitRequest
		code string
	}{
		{"missing name", CreateOrgUnitRequest{Parent: humID, Validity: dates("2018-06-01", "")}, CodeInvalidInput},
		{"missing from", CreateOrgUnitRequest{Name: "x", Parent: humID}, CodeInvalidInput},
		{"reversed interval", CreateOrgUnitRequest{Name: "x", Parent: humID, Validity: dates("2018-06-01", "2018-01-01")}, CodeInvalidInterval},
		{"unknown parent", CreateOrgUnitRequest{Name: "x", Parent: uuid.New(), Validity: dates("2018-06-01", "")}, CodeParentNotFound},
		{"outside parent range", CreateOrgUnitRequest{Name: "x", Parent: histID, Validity: dates("2018-06-01", "")}, CodeDateOutsideOrgUnitRange},
		{"before parent", CreateOrgUnitRequest{Name: "x", Parent: humID, Validity: dates("2015-06-01", "")}, CodeDateOutsideOrgUnitRange},
		{"unscoped address type", CreateOrgUnitRequest{
			Name: "x", Parent: humID, Validity: dates("2018-06-01", ""),
			Addresses: []AddressInput{{AddressType: unitTypeClass, Value: "v"}},
		}, CodeInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrgUnit(ctx, tc.req)
			requireServiceError(t, err, tc.code)
		})
	}
}

func editData(from, to string) EditOrgUnitRequest {
	var req EditOrgUnitRequest
	req.Data.Validity = dates(from, to)
	return req
}

func TestEditOrgUnitRename(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	req := editData("2018-07-01", "")
	name := "Humanistiske fakultet"
	req.Data.Name = &name
	require.NoError(t, svc.EditOrgUnit(ctx, humID, req))

	before, err := svc.GetMinimalUnit(ctx, present(), humID)
	require.NoError(t, err)
	require.Equal(t, "Humanistisk fakultet", before.Name)
	after, err := svc.GetMinimalUnit(ctx, presentAt("2018-08-01"), humID)
	require.NoError(t, err)
	require.Equal(t, name, after.Name)
	require.Equal(t, "hum", after.UserKey, "unchanged keys carry over")

	obj := fullObject(t, store, lora.KindOrganisationUnit, humID)
	require.Equal(t, payload.NoteEditUnit, obj.Note)
	for _, f := range lora.OrgUnitFields {
		require.True(t, payload.NonOverlapping(obj.Facts(f)), f.String())
	}
}

func TestEditOrgUnitMove(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	req := editData("2018-07-01", "")
	req.Data.Parent = &samfID
	require.NoError(t, svc.EditOrgUnit(ctx, humID, req))

	unit, err := svc.GetSelfUnit(ctx, presentAt("2018-08-01"), humID)
	require.NoError(t, err)
	require.Equal(t, "Samfundsvidenskabelige fakultet", unit.Parent.Name)
	unit, err = svc.GetSelfUnit(ctx, present(), humID)
	require.NoError(t, err)
	require.Equal(t, "Overordnet Enhed", unit.Parent.Name)

	obj := fullObject(t, store, lora.KindOrganisationUnit, humID)
	next := payload.Validity(day("2018-07-01"), virkning.PosInf)
	for _, f := range lora.OrgUnitFields {
		facts := obj.Facts(f)
		if len(facts) == 0 || f.Cardinality() == lora.ZeroToMany {
			continue
		}
		require.True(t, payload.NonOverlapping(facts), f.String())
		require.True(t, projection.Covered(facts, next, nil), f.String())
	}
}

func TestEditOrgUnitValidation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	past := editData("2018-01-01", "")
	name := "x"
	past.Data.Name = &name
	requireServiceError(t, svc.EditOrgUnit(ctx, humID, past), CodeChangingThePast)

	toChild := editData("2018-07-01", "")
	toChild.Data.Parent = &filID
	svcErr := requireServiceError(t, svc.EditOrgUnit(ctx, humID, toChild), CodeMoveToChild)
	require.Equal(t, 400, svcErr.Status)

	toSelf := editData("2018-07-01", "")
	toSelf.Data.Parent = &humID
	requireServiceError(t, svc.EditOrgUnit(ctx, humID, toSelf), CodeMoveToChild)

	toGrandchild := editData("2018-07-01", "")
	toGrandchild.Data.Parent = &statID
	requireServiceError(t, svc.EditOrgUnit(ctx, rootID, toGrandchild), CodeMoveToChild)

	nowhere := editData("2018-07-01", "")
	unknown := uuid.New()
	nowhere.Data.Parent = &unknown
	requireServiceError(t, svc.EditOrgUnit(ctx, humID, nowhere), CodeParentNotFound)

	otherID := editData("2018-07-01", "")
	otherID.Data.UUID = &filID
	requireServiceError(t, svc.EditOrgUnit(ctx, humID, otherID), CodeInvalidInput)

	outside := editData("2018-07-01", "")
	outside.Data.Parent = &histID
	requireServiceError(t, svc.EditOrgUnit(ctx, filID, outside), CodeDateOutsideOrgUnitRange)

	requireServiceError(t, svc.EditOrgUnit(ctx, uuid.New(), editData("2018-07-01", "")), CodeOrgUnitNotFound)
}

func TestEditOrgUnitWithOriginal(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	req := editData("2018-07-01", "2018-12-31")
	req.Original = &struct{ Validity Validity }{Validity: dates("2018-06-01", "")}
	name := "Midlertidigt navn"
	req.Data.Name = &name
	require.NoError(t, svc.EditOrgUnit(ctx, filID, req))

	obj := fullObject(t, store, lora.KindOrganisationUnit, filID)
	states := obj.Facts(lora.OrgUnitValidity)
	require.True(t, payload.NonOverlapping(states))
	after, ok := payload.VersionAt(states, day("2019-02-01"))
	require.True(t, ok)
	require.Equal(t, lora.Inactive, after.Get(lora.KeyValidity))

	unit, err := svc.GetMinimalUnit(ctx, presentAt("2018-08-01"), filID)
	require.NoError(t, err)
	require.Equal(t, name, unit.Name)
	_, err = svc.GetMinimalUnit(ctx, presentAt("2019-02-01"), filID)
	requireServiceError(t, err, CodeOrgUnitNotFound)
}

func TestTerminateOrgUnitBlockedByChild(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	before := fullToken(t, store, samfID)

	err := svc.TerminateOrgUnit(ctx, samfID, Validity{To: stringRef("2018-12-31")})
	svcErr := requireServiceError(t, err, CodeTerminateWithChildren)
	require.Equal(t, 1, svcErr.Meta["child_count"])
	require.Equal(t, 0, svcErr.Meta["role_count"])
	children := svcErr.Meta["child_units"].([]UnitWithChildCount)
	require.Len(t, children, 1)
	require.Equal(t, "Statskundskab", children[0].Name)
	require.True(t, before.Equal(fullToken(t, store, samfID)), "nothing is written")
}

func TestTerminateOrgUnitBlockedByRole(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	err := svc.TerminateOrgUnit(context.Background(), filID, Validity{To: stringRef("2018-12-31")})
	svcErr := requireServiceError(t, err, CodeTerminateWithChildren)
	require.Equal(t, 0, svcErr.Meta["child_count"])
	require.Equal(t, 1, svcErr.Meta["role_count"])
}

func TestTerminateOrgUnit(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.TerminateOrgUnit(ctx, statID, Validity{To: stringRef("2018-12-31")}))

	_, err := svc.GetMinimalUnit(ctx, presentAt("2018-12-31"), statID)
	require.NoError(t, err)
	_, err = svc.GetMinimalUnit(ctx, presentAt("2019-01-01"), statID)
	requireServiceError(t, err, CodeOrgUnitNotFound)

	obj := fullObject(t, store, lora.KindOrganisationUnit, statID)
	require.Equal(t, payload.NoteTerminateUnit, obj.Note)

	// With its only child gone the parent can follow.
	require.NoError(t, svc.TerminateOrgUnit(ctx, samfID, Validity{To: stringRef("2018-12-31")}))

	_, err = svc.CreateOrgUnit(ctx, CreateOrgUnitRequest{
		Name: "Sen enhed", Parent: statID, Validity: dates("2019-02-01", ""),
	})
	requireServiceError(t, err, CodeDateOutsideOrgUnitRange)

	err = svc.TerminateOrgUnit(ctx, statID, Validity{To: stringRef("2019-06-30")})
	requireServiceError(t, err, CodeDateOutsideOrgUnitRange)
	requireServiceError(t, svc.TerminateOrgUnit(ctx, statID, Validity{}), CodeInvalidInput)
}

// racingRepo creates a child unit right after the first unit update, as a
// concurrent request would.
type racingRepo struct {
	*countingRepo
	once  sync.Once
	child *lora.Object
}

func (r *racingRepo) Update(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object, since time.Time) (uuid.UUID, error) {
	out, err := r.countingRepo.Update(ctx, kind, id, obj, since)
	if err == nil && kind == lora.KindOrganisationUnit {
		r.once.Do(func() {
			_, err = r.countingRepo.Create(ctx, lora.KindOrganisationUnit, uuid.Nil, r.child)
		})
	}
	return out, err
}

func TestTerminateOrgUnitRevertsOnRace(t *testing.T) {
	t.Parallel()
	store := loadFixtures(t)
	child, err := payload.CreateUnit(payload.UnitInput{
		Name:         "Samtidig enhed",
		UserKey:      "race",
		Organisation: orgID.String(),
		Parent:       aalID.String(),
		Validity:     payload.Validity(day("2018-06-01"), virkning.PosInf),
	})
	require.NoError(t, err)
	repo := &racingRepo{countingRepo: &countingRepo{Repository: store}, child: child}
	svc := newServiceOn(repo, fixtureNow)
	ctx := context.Background()

	err = svc.TerminateOrgUnit(ctx, aalID, Validity{To: stringRef("2018-12-31")})
	svcErr := requireServiceError(t, err, CodeConflict)
	require.Equal(t, 409, svcErr.Status)
	require.Equal(t, 1, svcErr.Meta["child_count"])
	require.Equal(t, true, svcErr.Meta["reverted"])

	_, err = svc.GetMinimalUnit(ctx, presentAt("2019-06-01"), aalID)
	require.NoError(t, err, "termination is reverted")
}

// failingRevertRepo races like racingRepo and then refuses the unconditional
// unit update that undoes the termination.
type failingRevertRepo struct {
	*racingRepo
}

var errRevertRefused = errors.New("revert refused")

func (r *failingRevertRepo) Update(ctx context.Context, kind lora.Kind, id uuid.UUID, obj *lora.Object, since time.Time) (uuid.UUID, error) {
	if kind == lora.KindOrganisationUnit && since.IsZero() {
		return uuid.Nil, errRevertRefused
	}
	return r.racingRepo.Update(ctx, kind, id, obj, since)
}

func TestTerminateOrgUnitReportsFailedRevert(t *testing.T) {
	t.Parallel()
	store := loadFixtures(t)
	child, err := payload.CreateUnit(payload.UnitInput{
		Name:         "Samtidig enhed",
		UserKey:      "race",
		Organisation: orgID.String(),
		Parent:       aalID.String(),
		Validity:     payload.Validity(day("2018-06-01"), virkning.PosInf),
	})
	require.NoError(t, err)
	repo := &failingRevertRepo{racingRepo: &racingRepo{countingRepo: &countingRepo{Repository: store}, child: child}}
	svc := newServiceOn(repo, fixtureNow)
	ctx := context.Background()

	err = svc.TerminateOrgUnit(ctx, aalID, Validity{To: stringRef("2018-12-31")})
	svcErr := requireServiceError(t, err, CodeConflict)
	require.Equal(t, false, svcErr.Meta["reverted"])
	require.Equal(t, errRevertRefused.Error(), svcErr.Meta["revert_error"])
	require.ErrorIs(t, err, errRevertRefused)

	_, err = svc.GetMinimalUnit(ctx, presentAt("2019-06-01"), aalID)
	requireServiceError(t, err, CodeOrgUnitNotFound)
}

// The termination write is conditional on the unit's own registration. A
// child created under the unit registers the child, not the parent, so the
// condition cannot see it and only the second dependant check does.
func TestUnitRegistrationIgnoresNewChildren(t *testing.T) {
	t.Parallel()
	store := loadFixtures(t)
	ctx := context.Background()
	before := fullToken(t, store, aalID)

	child, err := payload.CreateUnit(payload.UnitInput{
		Name:         "Ny underenhed",
		UserKey:      "child",
		Organisation: orgID.String(),
		Parent:       aalID.String(),
		Validity:     payload.Validity(day("2018-06-01"), virkning.PosInf),
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, lora.KindOrganisationUnit, uuid.Nil, child)
	require.NoError(t, err)

	require.True(t, before.Equal(fullToken(t, store, aalID)))
	_, err = store.Update(ctx, lora.KindOrganisationUnit, aalID,
		payload.Inactivate(lora.OrgUnitValidity, day("2018-12-31"), payload.NoteTerminateUnit), before)
	require.NoError(t, err, "the conditional write still succeeds")
}
