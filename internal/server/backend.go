package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/classcache"
	"github.com/os2mo/mora/modules/org/infrastructure/dar"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/modules/org/infrastructure/memstore"
	"github.com/os2mo/mora/modules/org/infrastructure/persistence"
	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/configuration"
	"github.com/os2mo/mora/pkg/intl"
)

// Backend is the store and service wiring named by a configuration.
type Backend struct {
	Repository lora.Repository
	Options    []services.Option
}

// NewBackend opens the configured store and builds the service options.
// A nil pool leaves unit settings out.
func NewBackend(ctx context.Context, conf *configuration.Configuration, pool *pgxpool.Pool, logger *logrus.Logger) (*Backend, error) {
	repo, err := openRepository(ctx, conf, logger)
	if err != nil {
		return nil, err
	}

	policy, err := projection.ParsePolicy(conf.AmbiguousCurrentPolicy)
	if err != nil {
		return nil, err
	}
	collator, err := intl.NewCollator(conf.CollationLocale)
	if err != nil {
		return nil, fmt.Errorf("invalid COLLATION_LOCALE=%q: %w", conf.CollationLocale, err)
	}
	opts := []services.Option{
		services.WithPolicy(policy),
		services.WithLocation(conf.Location()),
		services.WithCollator(collator),
		services.WithPaging(conf.PageSize, conf.MaxPageSize),
		services.WithTreeSearchLimit(conf.TreeSearchLimit),
	}

	if pool != nil {
		opts = append(opts, services.WithSettings(persistence.NewUnitSettingsRepository()))
	}
	if conf.RedisURL != "" {
		cache, err := classcache.NewFromURL(conf.RedisURL, conf.ClassCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = append(opts, services.WithClassCache(cache))
	}
	if conf.DarURL != "" {
		lookup, err := dar.New(conf.DarURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DAR_URL: %w", err)
		}
		opts = append(opts, services.WithAddressLookup(lookup))
	}
	return &Backend{Repository: repo, Options: opts}, nil
}

func openRepository(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) (lora.Repository, error) {
	switch conf.StoreBackend {
	case "memory":
		store := memstore.New()
		if conf.FixturesPath == "" {
			return store, nil
		}
		n, err := store.LoadFile(ctx, conf.FixturesPath)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"path": conf.FixturesPath, "objects": n}).Info("fixtures loaded")
		return store, nil
	default:
		return loraclient.New(conf.Lora.URL, loraclient.WithTimeout(conf.Lora.Timeout))
	}
}
