package persistence

import (
	"context"
	"embed"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/composables"
)

//go:embed schema/*.sql
var MigrationFiles embed.FS

// MigrationsDir is the directory of MigrationFiles holding the goose scripts.
const MigrationsDir = "schema"

var _ services.SettingsRepository = (*UnitSettingsRepository)(nil)

type UnitSettingsRepository struct{}

func NewUnitSettingsRepository() *UnitSettingsRepository {
	return &UnitSettingsRepository{}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// UnitSettings reads the settings stored for one unit.
func (r *UnitSettingsRepository) UnitSettings(ctx context.Context, unitID uuid.UUID) (map[string]any, error) {
	return r.read(ctx, `SELECT setting, value FROM orgunit_settings WHERE object = $1`, pgUUID(unitID))
}

// GlobalSettings reads the settings not bound to any unit.
func (r *UnitSettingsRepository) GlobalSettings(ctx context.Context) (map[string]any, error) {
	return r.read(ctx, `SELECT setting, value FROM orgunit_settings WHERE object IS NULL`)
}

// SetSetting stores value for key, on unitID or globally when unitID is nil.
func (r *UnitSettingsRepository) SetSetting(ctx context.Context, unitID *uuid.UUID, key, value string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "settings: no database")
	}
	var object pgtype.UUID
	if unitID != nil {
		object = pgUUID(*unitID)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO orgunit_settings (object, setting, value)
VALUES ($1, $2, $3)
ON CONFLICT (COALESCE(object, '00000000-0000-0000-0000-000000000000'::uuid), setting)
DO UPDATE SET value = EXCLUDED.value
`, object, key, value); err != nil {
		return errors.Wrapf(err, "settings: store %q", key)
	}
	return nil
}

func (r *UnitSettingsRepository) read(ctx context.Context, query string, args ...any) (map[string]any, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "settings: no database")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "settings: query")
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "settings: scan")
		}
		out[key] = coerce(value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "settings: rows")
	}
	return out, nil
}

// coerce turns the stored "True"/"False" strings into booleans.
func coerce(value string) any {
	switch value {
	case "True":
		return true
	case "False":
		return false
	default:
		return value
	}
}
