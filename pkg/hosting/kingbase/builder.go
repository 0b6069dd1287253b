package kingbase

import (
	"path/filepath"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/hosting/pgadmin"
)

// Option customises AddKingbase.
type Option func(*options)

type options struct {
	userName *appmodel.ParameterResource
	password *appmodel.ParameterResource
	port     int
}

func WithUserName(p *appmodel.ParameterResource) Option {
	return func(o *options) { o.userName = p }
}

func WithPassword(p *appmodel.ParameterResource) Option {
	return func(o *options) { o.password = p }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// ServerBuilder configures a KingbaseES server.
type ServerBuilder struct {
	*appmodel.ResourceBuilder[*ServerResource]
}

// AddKingbase adds a KingbaseES server. The image boots through systemd, so
// the container runs privileged with /usr/sbin/init as entrypoint.
func AddKingbase(b *appmodel.Builder, name string, opts ...Option) *ServerBuilder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.password == nil {
		o.password = appmodel.CreateDefaultPasswordParameter(b, name, true)
	}

	capability := dbcapabilities.MustGet(dbcapabilities.KingbaseES)
	server := &ServerResource{
		ContainerResource: appmodel.NewContainerResource(name),
		userName:          o.userName,
		password:          o.password,
		mode:              ModePostgres,
	}

	checkKey := name + "_check"
	b.HealthChecks().Register(checkKey, serverCheck(server), 0)

	rb := appmodel.AddResource(b, server).
		WithImage(capability.Image, capability.Tag).
		WithImageRegistry(capability.Registry).
		WithEndpoint(PrimaryEndpointName, capability.DefaultPort, o.port, "tcp").
		WithPrivileged().
		WithEntrypoint("/usr/sbin/init").
		WithEnvironment("DB_USER", server.UserNameReference()).
		WithEnvironment("DB_PASSWORD", server.password).
		WithEnvironmentCallback(func(ec *appmodel.EnvironmentCallbackContext) error {
			ec.Env["DB_MODE"] = string(server.Mode())
			return nil
		}).
		WithEnvironment("NEED_START", "yes").
		WithEnvironment("ENABLE_CI", "yes").
		WithHealthCheck(checkKey)

	return &ServerBuilder{ResourceBuilder: rb}
}

// WithDatabaseMode selects the compatibility mode. The mode only applies to
// a fresh data directory.
func (sb *ServerBuilder) WithDatabaseMode(mode DatabaseMode) *ServerBuilder {
	s := sb.Resource()
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return sb
}

// AddDatabase adds a database to the server, created on first health check
// if missing. An empty databaseName defaults to name.
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

func (sb *ServerBuilder) WithDataVolume(name string) *ServerBuilder {
	if name == "" {
		name = appmodel.VolumeName(sb.Builder().AppName(), sb.Resource().Name(), "data")
	}
	sb.WithVolume(name, dbcapabilities.MustGet(dbcapabilities.KingbaseES).DataPath, false)
	return sb
}

func (sb *ServerBuilder) WithDataBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dbcapabilities.MustGet(dbcapabilities.KingbaseES).DataPath, false)
	return sb
}

// WithInitScriptBindMount mounts a single script read-only into the init
// directory, keeping its file name.
func (sb *ServerBuilder) WithInitScriptBindMount(path string) *ServerBuilder {
	target := dbcapabilities.MustGet(dbcapabilities.KingbaseES).InitPath + "/" + filepath.Base(path)
	sb.WithBindMount(path, target, true)
	return sb
}

func (sb *ServerBuilder) WithPgAdmin(configure func(*appmodel.ResourceBuilder[*pgadmin.PgAdminResource])) *ServerBuilder {
	pgadmin.AddPgAdmin(sb.Builder(), configure).WaitFor(sb.Resource())
	return sb
}

func (sb *ServerBuilder) WithPgWeb(configure func(*appmodel.ResourceBuilder[*pgadmin.PgWebResource])) *ServerBuilder {
	pgadmin.AddPgWeb(sb.Builder(), configure).WaitFor(sb.Resource())
	return sb
}
