package apphostfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/hosting/kingbase"
	"github.com/redbco/redb-apphost/pkg/hosting/mongodb"
	"github.com/redbco/redb-apphost/pkg/hosting/opengauss"
)

const shopFile = `
name: shop
orchestrator:
  startup_timeout: 90s
parameters:
  gauss-user:
    value: alice
  api-token:
    secret: true
    generate:
      min_length: 32
resources:
  - name: api
    image: example/api
    tag: "1.2"
    env:
      LOG_LEVEL: debug
    endpoints:
      - name: http
        target_port: 8080
        scheme: http
    references: [orders, catalog]
    wait_for: [orders, catalog]
  - name: gauss
    kind: openGauss
    user_parameter: gauss-user
    data_volume: "true"
    pgadmin: true
    databases:
      - name: orders
        database: orders_db
  - name: docs
    kind: mongo
    replica_set: rs0
    mongo_express: true
    lifetime: persistent
    databases:
      - name: catalog
  - name: kes
    kind: kingbase
    mode: oracle
`

func TestParseDefaultsAndOrder(t *testing.T) {
	f, err := Parse([]byte(shopFile))
	require.NoError(t, err)

	assert.Equal(t, "shop", f.Name)
	assert.Equal(t, 2*time.Second, f.Orchestrator.HealthCheckInterval)
	assert.Equal(t, 90*time.Second, f.Orchestrator.StartupTimeout)
	assert.Equal(t, 10*time.Second, f.Orchestrator.StopTimeout)

	assert.Equal(t, "opengauss", f.Resources[1].Kind)
	assert.Equal(t, "mongodb", f.Resources[2].Kind)
	assert.Equal(t, "catalog", f.Resources[2].Databases[0].Database)

	order, err := f.StartupOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"gauss", "docs", "api", "kes"}, order)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apphost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resources:\n  - name: web\n    image: nginx\n"), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "apphost", f.Name)
	assert.Equal(t, KindContainer, f.Resources[0].Kind)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"duplicate name", "resources:\n  - {name: db, kind: dm}\n  - {name: DB, image: x}\n", "already used"},
		{"database clashes with resource", "resources:\n  - {name: db, kind: dm, databases: [{name: db}]}\n", "already used"},
		{"unknown kind", "resources:\n  - {name: db, kind: oracle}\n", "unknown kind"},
		{"container needs image", "resources:\n  - {name: web}\n", "image is required"},
		{"unknown wait target", "resources:\n  - {name: web, image: x, wait_for: [db]}\n", "does not exist"},
		{"reference to container", "resources:\n  - {name: a, image: x}\n  - {name: b, image: x, references: [a]}\n", "not a database"},
		{"mode on wrong kind", "resources:\n  - {name: db, kind: opengauss, mode: oracle}\n", "mode is only supported"},
		{"pgadmin on mongo", "resources:\n  - {name: db, kind: mongodb, pgadmin: true}\n", "PostgreSQL compatible"},
		{"dm user", "parameters: {u: {value: x}}\nresources:\n  - {name: db, kind: dm, user_parameter: u}\n", "cannot be changed"},
		{"unknown parameter", "resources:\n  - {name: db, kind: dm, password_parameter: nope}\n", "unknown parameter"},
		{"bad lifetime", "resources:\n  - {name: web, image: x, lifetime: forever}\n", "unknown lifetime"},
		{"invalid name", "resources:\n  - {name: my_db, image: x}\n", "invalid resource name"},
		{"cycle", "resources:\n  - {name: a, image: x, wait_for: [b]}\n  - {name: b, image: x, wait_for: [a]}\n", "dependency cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild(t *testing.T) {
	f, err := Parse([]byte(shopFile))
	require.NoError(t, err)

	app, err := Build(f, appmodel.BuilderOptions{Operation: appmodel.OperationPublish})
	require.NoError(t, err)
	assert.Equal(t, "shop", app.Name())

	r, ok := app.Resource("gauss")
	require.True(t, ok)
	gauss := r.(*opengauss.ServerResource)
	user, err := gauss.UserNameReference().GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	mounts := appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](gauss)
	require.Len(t, mounts, 1)
	assert.Equal(t, "shop-gauss-data", mounts[0].Source)

	r, ok = app.Resource("docs")
	require.True(t, ok)
	docs := r.(*mongodb.ServerResource)
	assert.Equal(t, "rs0", docs.ReplicaSet())
	assert.Equal(t, appmodel.LifetimePersistent, appmodel.GetLifetime(docs))

	r, ok = app.Resource("kes")
	require.True(t, ok)
	assert.Equal(t, kingbase.ModeOracle, r.(*kingbase.ServerResource).Mode())

	for _, name := range []string{"pgadmin", "docs-mongoexpress", "orders", "catalog", "api-token", "gauss-password"} {
		_, ok := app.Resource(name)
		assert.True(t, ok, name)
	}

	api, ok := app.Resource("api")
	require.True(t, ok)
	assert.Len(t, appmodel.AnnotationsOf[*appmodel.WaitAnnotation](api), 2)

	m, err := app.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "{orders.connectionString}", m.Resources["api"].Env["ConnectionStrings__orders"])
	assert.Equal(t, "debug", m.Resources["api"].Env["LOG_LEVEL"])
	assert.Equal(t, "docker.io/library/mongo:8.0", m.Resources["docs"].Image)
}
