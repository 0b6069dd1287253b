package kingbase

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/hosting/internal/probe"
)

func serverCheck(s *ServerResource) health.CheckFunc {
	return probe.Check(s.ConnectionStringExpression(), Ping)
}

func databaseCheck(d *DatabaseResource) health.CheckFunc {
	return func(ctx context.Context) health.Result {
		serverCS, err := d.server.ConnectionStringExpression().GetValue(ctx)
		if err != nil {
			return health.Unhealthy("connection string is not available", err)
		}
		if err := EnsureDatabase(ctx, serverCS, d.databaseName); err != nil {
			return health.Unhealthy("failed to create database", err)
		}
		return probe.Check(d.ConnectionStringExpression(), Ping)(ctx)
	}
}

// Ping connects with a keyword connection string and runs SELECT 1.
func Ping(ctx context.Context, connectionString string) error {
	dsn, err := DSN(connectionString)
	if err != nil {
		return err
	}
	return probe.SQL(ctx, "postgres", dsn)
}

// DSN converts a keyword connection string into a lib/pq data source name.
func DSN(connectionString string) (string, error) {
	d, err := dbcapabilities.ParseConnectionString(dbcapabilities.KingbaseES, connectionString)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=5",
		dsnValue(dbcapabilities.DialHost(d.Host)), d.Port, dsnValue(d.Username), dsnValue(d.Password), dsnValue(d.DatabaseName)), nil
}

// EnsureDatabase creates databaseName unless it exists.
func EnsureDatabase(ctx context.Context, serverConnectionString, databaseName string) error {
	dsn, err := DSN(serverConnectionString)
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", databaseName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(databaseName)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", databaseName, err)
	}
	return nil
}

// dsnValue quotes a lib/pq keyword value when needed.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
