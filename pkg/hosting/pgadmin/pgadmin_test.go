package pgadmin

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

type fakeServer struct {
	*appmodel.ContainerResource
	password *appmodel.ParameterResource
}

func (s *fakeServer) PrimaryEndpoint() *appmodel.EndpointReference {
	return appmodel.NewEndpointReference(s, "tcp")
}

func (s *fakeServer) UserNameReference() appmodel.ValueProvider { return appmodel.Literal("gaussdb") }

func (s *fakeServer) PasswordParameter() *appmodel.ParameterResource { return s.password }

func (s *fakeServer) MaintenanceDatabase() string { return "postgres" }

type fakeDatabase struct {
	*appmodel.ChildResource
	server *fakeServer
	name   string
}

func (d *fakeDatabase) DatabaseName() string { return d.name }

func (d *fakeDatabase) Server() PostgresCompatible { return d.server }

func addServer(b *appmodel.Builder, name string) *fakeServer {
	s := &fakeServer{
		ContainerResource: appmodel.NewContainerResource(name),
		password:          b.AddParameterWithValue(name+"-pw", "secret-"+name, true).Resource(),
	}
	appmodel.AddResource(b, s).
		WithImage("opengauss/opengauss-server", "7.0.0-RC1").
		WithEndpoint("tcp", 5432, 0, "tcp")
	return s
}

func TestAddPgAdminIsSingleton(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	calls := 0
	configure := func(*appmodel.ResourceBuilder[*PgAdminResource]) { calls++ }

	first := AddPgAdmin(b, configure).Resource()
	second := AddPgAdmin(b, configure).Resource()

	assert.Same(t, first, second)
	assert.Equal(t, 2, calls)
	assert.Len(t, b.Resources(), 1)

	img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](first)
	require.True(t, ok)
	assert.Equal(t, "docker.io/dpage/pgadmin4:9.1", img.Reference())
	assert.True(t, appmodel.HasAnnotation[*appmodel.ExcludeFromManifestAnnotation](first))

	env, err := appmodel.ResolveEnvironment(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "False", env["PGADMIN_CONFIG_SERVER_MODE"])
	assert.Equal(t, "False", env["PGADMIN_CONFIG_MASTER_PASSWORD_REQUIRED"])
}

func TestPgAdminWritesServersFile(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	addServer(b, "alpha")
	beta := addServer(b, "beta")
	appmodel.NewResourceBuilder(b, beta).WithContainerName("beta-db")
	admin := AddPgAdmin(b, nil).Resource()

	app, err := b.Build()
	require.NoError(t, err)

	dir := t.TempDir()
	for _, a := range appmodel.AnnotationsOf[*appmodel.BeforeStartAnnotation](admin) {
		require.NoError(t, a.Callback(context.Background(), appmodel.BeforeStartEvent{Application: app, Resource: admin, WorkDir: dir}))
	}

	path := filepath.Join(dir, "pgadmin", "servers.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var file serversFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Servers, 2)
	assert.Equal(t, serverEntry{
		Name:                "alpha",
		Group:               "Servers",
		Host:                "alpha",
		Port:                5432,
		Username:            "gaussdb",
		SSLMode:             "prefer",
		MaintenanceDB:       "postgres",
		PasswordExecCommand: "printf '%s' 'secret-alpha'",
	}, file.Servers["1"])
	assert.Equal(t, "beta-db", file.Servers["2"].Host)

	mounts := appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](admin)
	require.Len(t, mounts, 1)
	assert.Equal(t, path, mounts[0].Source)
	assert.Equal(t, "/pgadmin4/servers.json", mounts[0].Target)
}

func TestPgWebWritesBookmarks(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	server := addServer(b, "gauss")
	appmodel.AddResource(b, &fakeDatabase{
		ChildResource: appmodel.NewChildResource("orders", server),
		server:        server,
		name:          "orders_db",
	})
	web := AddPgWeb(b, nil).Resource()

	args, err := appmodel.ResolveArgs(context.Background(), web)
	require.NoError(t, err)
	assert.Equal(t, []string{"--bookmarks-dir=/.pgweb/bookmarks", "--sessions"}, args)

	app, err := b.Build()
	require.NoError(t, err)

	dir := t.TempDir()
	ev := appmodel.BeforeStartEvent{Application: app, Resource: web, WorkDir: dir}
	for i := 0; i < 2; i++ {
		for _, a := range appmodel.AnnotationsOf[*appmodel.BeforeStartAnnotation](web) {
			require.NoError(t, a.Callback(context.Background(), ev))
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "pgweb", "bookmarks", "orders.toml"))
	require.NoError(t, err)

	var bm Bookmark
	require.NoError(t, toml.Unmarshal(data, &bm))
	assert.Equal(t, Bookmark{
		Host:     "gauss",
		Port:     5432,
		User:     "gaussdb",
		Password: "secret-gauss",
		Database: "orders_db",
		SSLMode:  "disable",
	}, bm)

	mounts := appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](web)
	require.Len(t, mounts, 1, "repeated starts reuse the mount")
	assert.Equal(t, "/.pgweb/bookmarks", mounts[0].Target)
}

func TestPasswordCommand(t *testing.T) {
	tests := []struct {
		password string
		want     string
	}{
		{"secret", `printf '%s' 'secret'`},
		{"it's", `printf '%s' 'it'\''s'`},
		{"'; touch /tmp/x; '", `printf '%s' ''\''; touch /tmp/x; '\'''`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, passwordCommand(tt.password))
	}
}

func TestPasswordCommandRoundTripsThroughShell(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}
	for _, password := range []string{"plain", "it's", `a\nb $(id) "q" ` + "`x`", "'; exit 3; '"} {
		out, err := exec.Command(sh, "-c", passwordCommand(password)).Output()
		require.NoError(t, err, password)
		assert.Equal(t, password, string(out))
	}
}
