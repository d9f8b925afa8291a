package factory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	facet "github.com/openfacet/facet"
	"github.com/openfacet/facet/internal"
)

// enginePool is the connection surface the factory hands to the engine.
// *pgxpool.Pool satisfies it, as do the pgxmock pools used in tests.
type enginePool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewEngineWithConfig verifies that the engine tables exist on the connected
// database and assembles a storage engine over them. This is the primary way
// for host projects to create an Engine instance.
//
// A nil config selects facet.DefaultConfig(). The pool must already be
// connected; table verification issues a single catalog query against it.
//
// Usage:
//
//	import (
//	    "github.com/openfacet/facet"
//	    "github.com/openfacet/facet/factory"
//	)
//
//	pool, err := pgxpool.New(ctx, dsn)
//	if err != nil {
//	    // handle error
//	}
//	eng, err := factory.NewEngineWithConfig(facet.DefaultConfig(), pool)
func NewEngineWithConfig(config *facet.Config, pool enginePool) (facet.Engine, error) {
	if pool == nil {
		return nil, facet.NewConfigurationError("factory requires a connected database pool")
	}
	if config == nil {
		config = facet.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if err := internal.VerifyEngineTables(context.Background(), pool, config.Database.TableNames); err != nil {
		return nil, err
	}

	return internal.NewEngine(pool, config)
}
