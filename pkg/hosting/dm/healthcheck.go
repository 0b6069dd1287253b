package dm

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	// Registers the "dm" database/sql driver.
	_ "gitee.com/chunanyong/dm"

	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/hosting/internal/probe"
)

const driverName = "dm"

func serverCheck(s *ServerResource) health.CheckFunc {
	return probe.Check(s.ConnectionStringExpression(), Ping)
}

func databaseCheck(d *DatabaseResource) health.CheckFunc {
	return func(ctx context.Context) health.Result {
		serverCS, err := d.server.ConnectionStringExpression().GetValue(ctx)
		if err != nil {
			return health.Unhealthy("connection string is not available", err)
		}
		if err := EnsureSchema(ctx, serverCS, d.schemaName); err != nil {
			return health.Unhealthy("failed to create schema", err)
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
	return probe.SQL(ctx, driverName, dsn)
}

// DSN converts a keyword connection string into a "dm://" data source name.
// Any Database other than the SYSDBA schema becomes the default schema.
// Identifiers are case sensitive, so "sysdba" is a schema of its own.
func DSN(connectionString string) (string, error) {
	d, err := dbcapabilities.ParseConnectionString(dbcapabilities.Dameng, connectionString)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "dm",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   net.JoinHostPort(dbcapabilities.DialHost(d.Host), strconv.Itoa(d.Port)),
	}
	if d.DatabaseName != dbcapabilities.MustGet(dbcapabilities.Dameng).SystemDatabase() {
		u.RawQuery = url.Values{"schema": {d.DatabaseName}}.Encode()
	}
	return u.String(), nil
}

// EnsureSchema creates schema unless it exists.
func EnsureSchema(ctx context.Context, serverConnectionString, schema string) error {
	dsn, err := DSN(serverConnectionString)
	if err != nil {
		return err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM SYSOBJECTS WHERE TYPE$ = 'SCH' AND NAME = ?", schema).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check schema existence: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA "+quoteIdentifier(schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
