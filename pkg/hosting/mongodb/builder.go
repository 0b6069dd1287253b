package mongodb

import (
	"fmt"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
)

const (
	mongoExpressImage = "mongo-express"
	mongoExpressTag   = "1.0.2-20"
)

// Option customises AddMongoDB.
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

// ServerBuilder configures a MongoDB server.
type ServerBuilder struct {
	*appmodel.ResourceBuilder[*ServerResource]
}

// AddMongoDB adds a MongoDB server container. The generated password has no
// special characters so it survives URI embedding unchanged.
func AddMongoDB(b *appmodel.Builder, name string, opts ...Option) *ServerBuilder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.password == nil {
		o.password = appmodel.CreateDefaultPasswordParameter(b, name, false)
	}

	capability := dbcapabilities.MustGet(dbcapabilities.MongoDB)
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
		WithEnvironment("MONGO_INITDB_ROOT_USERNAME", server.UserNameReference()).
		WithEnvironment("MONGO_INITDB_ROOT_PASSWORD", server.password).
		WithHealthCheck(checkKey)

	return &ServerBuilder{ResourceBuilder: rb}
}

// WithReplicaSet turns the server into a single-member replica set. An
// empty name selects DefaultReplicaSet. The health check initiates the set.
func (sb *ServerBuilder) WithReplicaSet(name string) *ServerBuilder {
	if name == "" {
		name = DefaultReplicaSet
	}
	s := sb.Resource()
	if s.ReplicaSet() != "" {
		sb.Builder().AddError(fmt.Errorf("resource %s: replica set is already configured", s.Name()))
		return sb
	}

	keyFile := appmodel.CreateGeneratedParameter(sb.Builder(), s.Name()+"-keyfile", true, &appmodel.GenerateParameterDefault{
		MinLength: 42,
		Lower:     true,
		Upper:     true,
		Numeric:   true,
	})

	s.mu.Lock()
	s.replicaSet = name
	s.keyFile = keyFile
	s.mu.Unlock()

	script := fmt.Sprintf(
		`echo "$%s" > %s && chmod 400 %s && chown 999:999 %s && exec docker-entrypoint.sh mongod --replSet %s --keyFile %s --bind_ip_all`,
		keyFileEnv, keyFilePath, keyFilePath, keyFilePath, name, keyFilePath)

	sb.WithEnvironment(keyFileEnv, keyFile).
		WithEntrypoint("bash").
		WithArgs("-c", script)
	return sb
}

// AddDatabase adds a database. MongoDB creates it on first write. An empty
// databaseName defaults to name.
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
	sb.WithVolume(name, dbcapabilities.MustGet(dbcapabilities.MongoDB).DataPath, false)
	return sb
}

func (sb *ServerBuilder) WithDataBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dbcapabilities.MustGet(dbcapabilities.MongoDB).DataPath, false)
	return sb
}

// WithInitBindMount mounts a directory of scripts run on first start.
func (sb *ServerBuilder) WithInitBindMount(source string) *ServerBuilder {
	sb.WithBindMount(source, dbcapabilities.MustGet(dbcapabilities.MongoDB).InitPath, true)
	return sb
}

// WithMongoExpress adds a mongo-express container named
// "<server>-mongoexpress" connected to this server.
func (sb *ServerBuilder) WithMongoExpress(configure func(*appmodel.ResourceBuilder[*MongoExpressResource])) *ServerBuilder {
	server := sb.Resource()
	me := &MongoExpressResource{ContainerResource: appmodel.NewContainerResource(server.Name() + "-mongoexpress")}

	rb := appmodel.AddResource(sb.Builder(), me).
		WithImage(mongoExpressImage, mongoExpressTag).
		WithImageRegistry("docker.io").
		WithHTTPEndpoint("http", 8081, 0).
		WithEnvironment("ME_CONFIG_MONGODB_URL", appmodel.ConnectionStringOf(server)).
		WithEnvironment("ME_CONFIG_BASICAUTH", "false").
		WaitFor(server).
		ExcludeFromManifest()

	if configure != nil {
		configure(rb)
	}
	return sb
}
