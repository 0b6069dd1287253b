// Package opengauss runs openGauss servers as application resources.
package opengauss

import (
	"sync"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/hosting/pgadmin"
)

const (
	PrimaryEndpointName = "tcp"
	DefaultUserName     = "gaussdb"
)

// ServerResource is an openGauss server container.
type ServerResource struct {
	*appmodel.ContainerResource

	userName *appmodel.ParameterResource
	password *appmodel.ParameterResource

	mu        sync.Mutex
	databases []*DatabaseResource
}

var (
	_ appmodel.ResourceWithConnectionString = (*ServerResource)(nil)
	_ pgadmin.PostgresCompatible            = (*ServerResource)(nil)
)

func (s *ServerResource) PrimaryEndpoint() *appmodel.EndpointReference {
	return appmodel.NewEndpointReference(s, PrimaryEndpointName)
}

// UserNameReference is the user parameter, or the default user.
func (s *ServerResource) UserNameReference() appmodel.ValueProvider {
	if s.userName != nil {
		return s.userName
	}
	return appmodel.Literal(DefaultUserName)
}

func (s *ServerResource) PasswordParameter() *appmodel.ParameterResource { return s.password }

func (s *ServerResource) MaintenanceDatabase() string {
	return dbcapabilities.MustGet(dbcapabilities.OpenGauss).SystemDatabase()
}

// ConnectionStringExpression is
// "Host={host};Port={port};Username={user};Password={password}".
func (s *ServerResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	ep := s.PrimaryEndpoint()
	return appmodel.Expr(
		"Host=", ep.Property(appmodel.PropertyHost),
		";Port=", ep.Property(appmodel.PropertyPort),
		";Username=", s.UserNameReference(),
		";Password=", s.password,
	)
}

// Databases returns the databases added to the server.
func (s *ServerResource) Databases() []*DatabaseResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DatabaseResource(nil), s.databases...)
}

// DatabaseResource is a database inside an openGauss server.
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
