package appmodel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-apphost/pkg/health"
)

type testDatabase struct {
	*ChildResource
	databaseName string
	server       *ContainerResource
}

func (d *testDatabase) ConnectionStringExpression() *ReferenceExpression {
	ep := NewEndpointReference(d.server, "tcp")
	return Expr("Host=", ep.Property(PropertyHost), ";Port=", ep.Property(PropertyPort), ";Database=", d.databaseName)
}

func TestValidateResourceName(t *testing.T) {
	valid := []string{"a", "gauss", "my-db-1", "A1"}
	for _, name := range valid {
		assert.NoError(t, ValidateResourceName(name), name)
	}

	invalid := []string{"", "1db", "-db", "db-", "my--db", "db_1", "数据库", string(make([]byte, 65))}
	for _, name := range invalid {
		err := ValidateResourceName(name)
		assert.ErrorIs(t, err, ErrInvalidResourceName, name)
	}
}

func TestAddResourceRecordsErrors(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	b.AddContainer("db", "img", "1")
	b.AddContainer("DB", "img", "1")
	b.AddContainer("bad--name", "img", "1")

	assert.Len(t, b.Resources(), 1)

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateResource)
	assert.ErrorIs(t, err, ErrInvalidResourceName)
}

func TestBuildRejectsUnknownHealthCheckAndWaitTarget(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	outsider := NewContainerResource("outsider")
	b.AddContainer("api", "img", "1").WithHealthCheck("missing_check").WaitFor(outsider)

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_check")
	assert.Contains(t, err.Error(), "outsider")
}

func TestBuilderFluentConfiguration(t *testing.T) {
	b := NewBuilder(BuilderOptions{AppName: "shop"})
	b.HealthChecks().Register("db_check", func(context.Context) health.Result { return health.Healthy("") }, 0)

	db := b.AddContainer("db", "library/db", "1").
		WithImageRegistry("docker.io").
		WithImageTag("2").
		WithEndpoint("tcp", 5432, 0, "").
		WithVolume(VolumeName("shop", "db", "data"), "/data", false).
		WithBindMount("init", "/init", true).
		WithPrivileged().
		WithPrivileged().
		WithHealthCheck("db_check").
		WithHealthCheck("db_check").
		WithEntrypoint("/bin/a").
		WithEntrypoint("/bin/b")

	api := b.AddContainer("api", "example/api", "latest").
		WaitFor(db.Resource()).
		WaitForStart(db.Resource()).
		WaitFor(db.Resource())

	app, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "shop", app.Name())

	img, ok := LastAnnotation[*ContainerImageAnnotation](db.Resource())
	require.True(t, ok)
	assert.Equal(t, "docker.io/library/db:2", img.Reference())

	assert.Len(t, AnnotationsOf[*PrivilegedAnnotation](db.Resource()), 1)
	assert.Len(t, AnnotationsOf[*HealthCheckAnnotation](db.Resource()), 1)
	assert.Len(t, AnnotationsOf[*EntrypointAnnotation](db.Resource()), 1)
	ep, _ := LastAnnotation[*EntrypointAnnotation](db.Resource())
	assert.Equal(t, "/bin/b", ep.Entrypoint)

	mounts := AnnotationsOf[*ContainerMountAnnotation](db.Resource())
	require.Len(t, mounts, 2)
	assert.Equal(t, "shop-db-data", mounts[0].Source)
	assert.True(t, filepath.IsAbs(mounts[1].Source))

	assert.Len(t, AnnotationsOf[*WaitAnnotation](api.Resource()), 2)
	assert.Equal(t, LifetimeSession, GetLifetime(api.Resource()))
}

func TestBuilderRejectsInvalidEndpoints(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	b.AddContainer("a", "img", "1").
		WithEndpoint("tcp", 5432, 0, "").
		WithEndpoint("tcp", 5433, 0, "").
		WithEndpoint("bad", 0, 0, "").
		WithEndpointPort("nope", 1)

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Contains(t, err.Error(), "invalid target port")
	assert.Contains(t, err.Error(), "no endpoint named")
}

func TestWaitForSelfAndChildRejected(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	server := b.AddContainer("server", "img", "1")
	child := AddResource(b, &testDatabase{ChildResource: NewChildResource("server-db", server.Resource()), server: server.Resource()})

	server.WaitFor(server.Resource())
	server.WaitFor(child.Resource())

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot wait for itself")
	assert.Contains(t, err.Error(), "cannot wait for child")
}

func TestWithReferenceInjectsContainerNetworkConnectionString(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	server := b.AddContainer("server", "img", "1").WithEndpoint("tcp", 5432, 0, "")
	db := AddResource(b, &testDatabase{
		ChildResource: NewChildResource("orders", server.Resource()),
		databaseName:  "orders",
		server:        server.Resource(),
	}).WithParentRelationship(server.Resource())

	api := b.AddContainer("api", "img", "1").WithReference(db.Resource()).WithEnvironment("MODE", "dev")

	app, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []Resource{db.Resource()}, app.Children(server.Resource()))

	env, err := ResolveEnvironment(WithContainerNetwork(context.Background()), api.Resource())
	require.NoError(t, err)
	assert.Equal(t, "Host=server;Port=5432;Database=orders", env["ConnectionStrings__orders"])
	assert.Equal(t, "dev", env["MODE"])

	rels := AnnotationsOf[*RelationshipAnnotation](api.Resource())
	require.Len(t, rels, 1)
	assert.Equal(t, RelationshipReference, rels[0].Type)
}

func TestWithEnvironmentRejectsUnsupportedValues(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	b.AddContainer("a", "img", "1").WithEnvironment("X", 42).WithArgs("--ok", 3.5)

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment variable X")
	assert.Contains(t, err.Error(), "argument has unsupported type")
}

func TestResolveArgs(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	p := b.AddParameterWithValue("flag", "on", false).Resource()
	c := b.AddContainer("a", "img", "1").WithArgs("--mode", p).WithArgsCallback(func(ac *CommandLineArgsCallbackContext) error {
		ac.Args = append(ac.Args, "--last")
		return nil
	})

	args, err := ResolveArgs(context.Background(), c.Resource())
	require.NoError(t, err)
	assert.Equal(t, []string{"--mode", "on", "--last"}, args)
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "shop-gauss-data", VolumeName("shop", "gauss", "data"))
	assert.Equal(t, "my_app-db-data", VolumeName("My App", "db", "data"))
	assert.Equal(t, "app-db", VolumeName("_app", "db", ""))
}
