package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/memstore"
	"github.com/os2mo/mora/modules/org/services"
)

const (
	rootID        = "2874e1dc-85e6-4269-823a-e1125484dfd3"
	humID         = "9d07123e-47ac-4a9a-88c8-da82e3a4bc9e"
	filID         = "85715fc7-925d-401b-822d-467eb4b163b6"
	oerstedID     = "a1d4dabc-5cae-4ba6-a4de-f2a6c1d0d4a6"
	filEngagement = "301a906b-ef51-4d5c-9c77-386fb8410459"
)

var fixtureNow = time.Date(2018, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New(memstore.WithNow(func() time.Time { return fixtureNow }))
	_, err := store.LoadFile(context.Background(), "../../modules/org/services/testdata/fixtures.yaml")
	require.NoError(t, err)
	return &env{org: services.NewOrgService(store,
		services.WithClock(projection.FixedClock(fixtureNow)),
		services.WithLocation(time.UTC),
	)}
}

func run(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTreeCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, newTestEnv(t), "tree", "--unit", filID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Equal(t, []string{
		"Overordnet Enhed (" + rootID + ")",
		"  Humanistisk fakultet (" + humID + ")",
		"    Filosofisk Institut (" + filID + ") [0]",
	}, lines[:3])
	require.Contains(t, out, "  Samfundsvidenskabelige fakultet (b688513d-11f7-4efc-b679-ab082a2055d0) [1]\n")
}

func TestTreeCommandJSON(t *testing.T) {
	t.Parallel()
	out, err := run(t, newTestEnv(t), "tree", "--unit", filID, "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"name":"Overordnet Enhed"`)
	require.Contains(t, out, filID)
}

func TestTreeCommandUsage(t *testing.T) {
	t.Parallel()
	_, err := run(t, newTestEnv(t), "tree")
	require.Error(t, err)
	require.Equal(t, exitUsage, exitCode(err))

	_, err = run(t, newTestEnv(t), "tree", "--unit", "nope")
	require.Equal(t, exitUsage, exitCode(err))

	_, err = run(t, newTestEnv(t), "tree", "--unit", filID, "--validity", "sometime")
	require.Equal(t, exitUsage, exitCode(err))
}

func TestTreeCommandUnknownUnit(t *testing.T) {
	t.Parallel()
	_, err := run(t, newTestEnv(t), "tree", "--unit", uuid.NewString())
	require.Error(t, err)
	require.Equal(t, exitValidation, exitCode(err))
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, newTestEnv(t), "history", humID)
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		require.True(t, strings.HasPrefix(line, "{"), line)
	}

	_, err = run(t, newTestEnv(t), "history", "not-a-uuid")
	require.Equal(t, exitUsage, exitCode(err))
}

func TestMoveEngagementsCommand(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	out, err := run(t, e, "move-engagements", "--unit", oerstedID, "--date", "2018-07-01", "--present", filEngagement)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	_, err = uuid.Parse(lines[0])
	require.NoError(t, err)

	_, err = run(t, e, "move-engagements", "--unit", oerstedID, "--date", "2018-07-01", "--present", uuid.NewString())
	require.Equal(t, exitValidation, exitCode(err))
}

func TestParseFutureMoves(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	moves, err := parseFutureMoves([]string{id.String(), id.String() + ":overwrite", id.String() + ":keep"})
	require.NoError(t, err)
	require.Equal(t, []services.FutureMove{{UUID: id}, {UUID: id, Overwrite: true}, {UUID: id}}, moves)

	_, err = parseFutureMoves([]string{id.String() + ":replace"})
	require.Equal(t, exitUsage, exitCode(err))
	_, err = parseFutureMoves([]string{"x:overwrite"})
	require.Equal(t, exitUsage, exitCode(err))
}

func TestSettingsCommandWithoutDatabase(t *testing.T) {
	t.Parallel()
	_, err := run(t, newTestEnv(t), "settings", "set", "--unit", humID, "show_location", "true")
	require.ErrorIs(t, err, errNoSettingsDB)
	require.Equal(t, exitDB, exitCode(err))

	_, err = run(t, newTestEnv(t), "settings", "set", "show_location")
	require.Equal(t, exitUsage, exitCode(err))
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	t.Parallel()
	_, err := run(t, newTestEnv(t), "migrate", "sideways")
	require.Equal(t, exitUsage, exitCode(err))
}
