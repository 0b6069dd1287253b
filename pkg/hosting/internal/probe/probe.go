// Package probe holds the connection probes shared by the hosting packages.
package probe

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/health"
)

// Func probes a server reachable with connectionString.
type Func func(ctx context.Context, connectionString string) error

// Check returns a health check that resolves cs as seen from the host and
// hands it to fn.
func Check(cs appmodel.ValueProvider, fn Func) health.CheckFunc {
	return func(ctx context.Context) health.Result {
		value, err := cs.GetValue(ctx)
		if err != nil {
			return health.Unhealthy("connection string is not available", err)
		}
		return Result(fn(ctx, value))
	}
}

// SQL opens a database/sql connection, pings it and runs SELECT 1.
func SQL(ctx context.Context, driverName, dsn string) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to run probe query: %w", err)
	}
	return nil
}

// Result maps a probe error to a health result.
func Result(err error) health.Result {
	if err != nil {
		return health.Unhealthy("connection probe failed", err)
	}
	return health.Healthy("")
}
