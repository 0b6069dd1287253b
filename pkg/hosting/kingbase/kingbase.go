// Package kingbase runs KingbaseES servers as application resources.
package kingbase

import (
	"sync"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/hosting/pgadmin"
)

const (
	PrimaryEndpointName = "tcp"
	DefaultUserName     = "system"
)

// DatabaseMode is the compatibility mode the server is initialised with.
type DatabaseMode string

const (
	ModePostgres DatabaseMode = "pg"
	ModeOracle   DatabaseMode = "oracle"
	ModeMySQL    DatabaseMode = "mysql"
)

// ServerResource is a KingbaseES server container.
type ServerResource struct {
	*appmodel.ContainerResource

	userName *appmodel.ParameterResource
	password *appmodel.ParameterResource

	mu        sync.Mutex
	mode      DatabaseMode
	databases []*DatabaseResource
}

var (
	_ appmodel.ResourceWithConnectionString = (*ServerResource)(nil)
	_ pgadmin.PostgresCompatible            = (*ServerResource)(nil)
)

func (s *ServerResource) PrimaryEndpoint() *appmodel.EndpointReference {
	return appmodel.NewEndpointReference(s, PrimaryEndpointName)
}

func (s *ServerResource) UserNameReference() appmodel.ValueProvider {
	if s.userName != nil {
		return s.userName
	}
	return appmodel.Literal(DefaultUserName)
}

func (s *ServerResource) PasswordParameter() *appmodel.ParameterResource { return s.password }

func (s *ServerResource) MaintenanceDatabase() string {
	return dbcapabilities.MustGet(dbcapabilities.KingbaseES).SystemDatabase()
}

// Mode returns the configured compatibility mode.
func (s *ServerResource) Mode() DatabaseMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *ServerResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	ep := s.PrimaryEndpoint()
	return appmodel.Expr(
		"Host=", ep.Property(appmodel.PropertyHost),
		";Port=", ep.Property(appmodel.PropertyPort),
		";Username=", s.UserNameReference(),
		";Password=", s.password,
	)
}

func (s *ServerResource) Databases() []*DatabaseResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DatabaseResource(nil), s.databases...)
}

// DatabaseResource is a database inside a KingbaseES server.
type DatabaseResource struct {
	*appmodel.ChildResource

	server       *ServerResource
	databaseName string
}

var (
	_ appmodel.ResourceWithConnectionString = (*DatabaseResource)(nil)
	_ pgadmin.PostgresCompatibleDatabase    = (*DatabaseResource)(nil)
)

func (d *DatabaseResource) DatabaseName() string { return d.databaseName }

func (d *DatabaseResource) Server() pgadmin.PostgresCompatible { return d.server }

func (d *DatabaseResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	return d.server.ConnectionStringExpression().Append(";Database=", d.databaseName)
}
