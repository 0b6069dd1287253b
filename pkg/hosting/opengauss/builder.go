package opengauss

import (
	"strconv"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/hosting/pgadmin"
)

// Option customises AddOpenGauss.
type Option func(*options)

type options struct {
	userName *appmodel.ParameterResource
	password *appmodel.ParameterResource
	port     int
}

// WithUserName sets the superuser name from a parameter.
func WithUserName(p *appmodel.ParameterResource) Option {
	return func(o *options) { o.userName = p }
}

// WithPassword sets the superuser password from a parameter.
func WithPassword(p *appmodel.ParameterResource) Option {
	return func(o *options) { o.password = p }
}

// WithPort fixes the host port.
func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// ServerBuilder configures an openGauss server.
type ServerBuilder struct {
	*appmodel.ResourceBuilder[*ServerResource]
}

// AddOpenGauss adds an openGauss server container. Without WithPassword a
// strong password is generated and stored as "<name>-password".
func AddOpenGauss(b *appmodel.Builder, name string, opts ...Option) *ServerBuilder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.password == nil {
		// openGauss rejects passwords without special characters.
		o.password = appmodel.CreateDefaultPasswordParameter(b, name, true)
	}

	capability := dbcapabilities.MustGet(dbcapabilities.OpenGauss)
	server := &ServerResource{
		ContainerResource: appmodel.NewContainerResource(name),
		userName:          o.userName,
		password:          o.password,
	}

	checkKey := name + "_check"
	b.HealthChecks().Register(checkKey, serverCheck(server), 0)

	rb := appmodel.AddResource(b, server).
		WithImage(capability.Image, capability.Tag).
		WithImageRegistry(capability.Registry).
		WithEndpoint(PrimaryEndpointName, capability.DefaultPort, o.port, "tcp").
		WithEnvironment("GS_USERNAME", server.UserNameReference()).
		WithEnvironment("GS_PASSWORD", server.password).
		WithEnvironment("GS_PORT", strconv.Itoa(capability.DefaultPort)).
		WithHealthCheck(checkKey)

	return &ServerBuilder{ResourceBuilder: rb}
}

// AddDatabase adds a database to the server. An empty databaseName defaults
// to name. The database is created on first health check if missing.
func (sb *ServerBuilder) AddDatabase(name, databaseName string) *appmodel.ResourceBuilder[*DatabaseResource] {
	if databaseName == "" {
		databaseName = name
	}
	server := sb.Resource()
	db := &DatabaseResource{
		ChildResource: appmodel.NewChildResource(name, server),
		server:        server,
		databaseName:  databaseName,
	}

	b := sb.Builder()
	checkKey := name + "_check"
	b.HealthChecks().Register(checkKey, databaseCheck(db), 0)

	rb := appmodel.AddResource(b, db).
		WithParentRelationship(server).
		WithHealthCheck(checkKey)

	server.mu.Lock()
	server.databases = append(server.databases, db)
	server.mu.Unlock()
	return rb
}

// WithDataVolume persists the data directory in a named volume. An empty
// name derives one from the application and resource names.
func (sb *ServerBuilder) WithDataVolume(name string) *ServerBuilder {
	if name == "" {
		name = appmodel.VolumeName(sb.Builder().AppName(), sb.Resource().Name(), "data")
	}
	sb.WithVolume(name, dbcapabilities.MustGet(dbcapabilities.OpenGauss).DataPath, false)
	return sb
}

// WithDataBindMount persists the data directory in a host directory.
func (sb *ServerBuilder) WithDataBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dbcapabilities.MustGet(dbcapabilities.OpenGauss).DataPath, false)
	return sb
}

// WithInitBindMount mounts a directory of scripts run on first start.
func (sb *ServerBuilder) WithInitBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dbcapabilities.MustGet(dbcapabilities.OpenGauss).InitPath, true)
	return sb
}

// WithPgAdmin attaches the shared pgAdmin container to this server.
func (sb *ServerBuilder) WithPgAdmin(configure func(*appmodel.ResourceBuilder[*pgadmin.PgAdminResource])) *ServerBuilder {
	pgadmin.AddPgAdmin(sb.Builder(), configure).WaitFor(sb.Resource())
	return sb
}

// WithPgWeb attaches the shared pgweb container to this server.
func (sb *ServerBuilder) WithPgWeb(configure func(*appmodel.ResourceBuilder[*pgadmin.PgWebResource])) *ServerBuilder {
	pgadmin.AddPgWeb(sb.Builder(), configure).WaitFor(sb.Resource())
	return sb
}
