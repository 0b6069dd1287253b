package opengauss

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/hosting/internal/probe"
)

const connectTimeout = 5 * time.Second

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
	details, err := dbcapabilities.ParseConnectionString(dbcapabilities.OpenGauss, connectionString)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, details)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to run probe query: %w", err)
	}
	return nil
}

// EnsureDatabase creates databaseName through the server's maintenance
// database unless it already exists.
func EnsureDatabase(ctx context.Context, serverConnectionString, databaseName string) error {
	details, err := dbcapabilities.ParseConnectionString(dbcapabilities.OpenGauss, serverConnectionString)
	if err != nil {
		return err
	}
	conn, err := connect(ctx, details)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", databaseName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{databaseName}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create database %s: %w", databaseName, err)
	}
	return nil
}

func connect(ctx context.Context, d *dbcapabilities.ConnectionDetails) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}
	cfg.Host = dbcapabilities.DialHost(d.Host)
	cfg.Port = uint16(d.Port)
	cfg.Database = d.DatabaseName
	cfg.User = d.Username
	cfg.Password = d.Password
	cfg.ConnectTimeout = connectTimeout

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Address(), err)
	}
	return conn, nil
}
