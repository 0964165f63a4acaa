package persistence_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/infrastructure/persistence"
	"github.com/os2mo/mora/pkg/constants"
)

type fakeRows struct {
	data [][2]string
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row[0]
	*dest[1].(*string) = row[1]
	return nil
}

// fakeTx answers queries from a table keyed by the object argument.
type fakeTx struct {
	global  [][2]string
	perUnit map[uuid.UUID][][2]string
	execs   []string
	args    [][]any
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "IS NULL") {
		return &fakeRows{data: f.global}, nil
	}
	id := args[0].(pgtype.UUID)
	return &fakeRows{data: f.perUnit[uuid.UUID(id.Bytes)]}, nil
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func TestUnitSettingsCoercesBooleans(t *testing.T) {
	t.Parallel()
	unit := uuid.New()
	tx := &fakeTx{
		global: [][2]string{{"show_location", "True"}, {"show_user_key", "False"}},
		perUnit: map[uuid.UUID][][2]string{
			unit: {{"show_location", "False"}, {"theme", "blue"}},
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)
	repo := persistence.NewUnitSettingsRepository()

	global, err := repo.GlobalSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"show_location": true, "show_user_key": false}, global)

	local, err := repo.UnitSettings(ctx, unit)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"show_location": false, "theme": "blue"}, local)

	empty, err := repo.UnitSettings(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSetSettingUpserts(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)
	repo := persistence.NewUnitSettingsRepository()

	unit := uuid.New()
	require.NoError(t, repo.SetSetting(ctx, &unit, "show_location", "True"))
	require.NoError(t, repo.SetSetting(ctx, nil, "show_location", "False"))

	require.Len(t, tx.execs, 2)
	require.Contains(t, tx.execs[0], "ON CONFLICT")
	require.True(t, tx.args[0][0].(pgtype.UUID).Valid)
	require.False(t, tx.args[1][0].(pgtype.UUID).Valid)
}

func TestSettingsWithoutDatabase(t *testing.T) {
	t.Parallel()
	_, err := persistence.NewUnitSettingsRepository().GlobalSettings(context.Background())
	require.Error(t, err)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()
	raw, err := persistence.MigrationFiles.ReadFile(persistence.MigrationsDir + "/orgunit-settings.sql")
	require.NoError(t, err)
	require.Contains(t, string(raw), "-- +goose Up")
	require.Contains(t, string(raw), "orgunit_settings")
}
