package dm

import (
	"fmt"
	"strings"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
)

// Option customises AddDm.
type Option func(*options)

type options struct {
	password *appmodel.ParameterResource
	port     int
}

// WithPassword sets the SYSDBA and SYSAUDITOR password from a parameter.
func WithPassword(p *appmodel.ParameterResource) Option {
	return func(o *options) { o.password = p }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// ServerBuilder configures a DM server.
type ServerBuilder struct {
	*appmodel.ResourceBuilder[*ServerResource]
}

// AddDm adds a DM8 server container.
func AddDm(b *appmodel.Builder, name string, opts ...Option) *ServerBuilder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.password == nil {
		o.password = appmodel.CreateDefaultPasswordParameter(b, name, false)
	}

	capability := dbcapabilities.MustGet(dbcapabilities.Dameng)
	server := &ServerResource{
		ContainerResource: appmodel.NewContainerResource(name),
		password:          o.password,
		initParams:        make(map[string]string, len(defaultInitParameters)),
	}
	for k, v := range defaultInitParameters {
		server.initParams[k] = v
	}

	checkKey := name + "_check"
	b.HealthChecks().Register(checkKey, serverCheck(server), 0)

	rb := appmodel.AddResource(b, server).
		WithImage(capability.Image, capability.Tag).
		WithImageRegistry(capability.Registry).
		WithEndpoint(PrimaryEndpointName, capability.DefaultPort, o.port, "tcp").
		WithPrivileged().
		WithEnvironment("SYSDBA_PWD", server.password).
		WithEnvironment("SYSAUDITOR_PWD", server.password).
		WithEnvironment("INSTANCE_NAME", server.InstanceName()).
		WithEnvironmentCallback(func(ec *appmodel.EnvironmentCallbackContext) error {
			for _, kv := range server.InitParameters() {
				ec.Env[kv[0]] = kv[1]
			}
			return nil
		}).
		WithHealthCheck(checkKey)

	return &ServerBuilder{ResourceBuilder: rb}
}

// WithInitParameter sets a dminit parameter such as PAGE_SIZE. Keys are
// upper-cased. Parameters only apply to a fresh data directory.
func (sb *ServerBuilder) WithInitParameter(key, value string) *ServerBuilder {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		sb.Builder().AddError(fmt.Errorf("resource %s: init parameter key must not be empty", sb.Resource().Name()))
		return sb
	}
	s := sb.Resource()
	s.mu.Lock()
	s.initParams[key] = value
	s.mu.Unlock()
	return sb
}

// AddDatabase adds a schema, created on first health check if missing. An
// empty schemaName defaults to name.
func (sb *ServerBuilder) AddDatabase(name, schemaName string) *appmodel.ResourceBuilder[*DatabaseResource] {
	if schemaName == "" {
		schemaName = name
	}
	server := sb.Resource()
	db := &DatabaseResource{
		ChildResource: appmodel.NewChildResource(name, server),
		server:        server,
		schemaName:    schemaName,
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
	sb.WithVolume(name, dataPath(), false)
	return sb
}

func (sb *ServerBuilder) WithDataBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dataPath(), false)
	return sb
}
