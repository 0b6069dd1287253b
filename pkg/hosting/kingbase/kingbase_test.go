package kingbase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

func TestAddKingbase(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "Secret-1", true).Resource()
	server := AddKingbase(b, "kes", WithPassword(pw)).WithDatabaseMode(ModeOracle).Resource()

	img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](server)
	require.True(t, ok)
	assert.Equal(t, "docker.io/apecloud/kingbase:v008r006c009b0014-unit", img.Reference())
	assert.True(t, appmodel.HasAnnotation[*appmodel.PrivilegedAnnotation](server))

	entry, ok := appmodel.LastAnnotation[*appmodel.EntrypointAnnotation](server)
	require.True(t, ok)
	assert.Equal(t, "/usr/sbin/init", entry.Entrypoint)

	ep, ok := server.PrimaryEndpoint().Annotation()
	require.True(t, ok)
	assert.Equal(t, 54321, ep.TargetPort)

	env, err := appmodel.ResolveEnvironment(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DB_USER":     "system",
		"DB_PASSWORD": "Secret-1",
		"DB_MODE":     "oracle",
		"NEED_START":  "yes",
		"ENABLE_CI":   "yes",
	}, env)

	assert.True(t, b.HealthChecks().IsRegistered("kes_check"))
	assert.Equal(t, "test", server.MaintenanceDatabase())
}

func TestDefaultModeIsPostgres(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	server := AddKingbase(b, "kes").Resource()
	assert.Equal(t, ModePostgres, server.Mode())
	assert.Equal(t, "kes-password", server.PasswordParameter().Name())
}

func TestKingbaseConnectionString(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	user := b.AddParameterWithValue("user", "app", false).Resource()
	pw := b.AddParameterWithValue("pw", "pw", true).Resource()
	sb := AddKingbase(b, "kes", WithUserName(user), WithPassword(pw))
	db := sb.AddDatabase("ledger", "").Resource()

	ctx := appmodel.WithContainerNetwork(context.Background())
	cs, err := db.ConnectionStringExpression().GetValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Host=kes;Port=54321;Username=app;Password=pw;Database=ledger", cs)

	dsn, err := DSN(cs)
	require.NoError(t, err)
	assert.Equal(t, "host=kes port=54321 user=app password=pw dbname=ledger sslmode=disable connect_timeout=5", dsn)
}

func TestDSNDefaultsAndQuoting(t *testing.T) {
	dsn, err := DSN("Host=localhost;Password='it''s me'")
	require.NoError(t, err)
	assert.Equal(t, `host=127.0.0.1 port=54321 user=system password='it\'s me' dbname=test sslmode=disable connect_timeout=5`, dsn)

	_, err = DSN("Port=1")
	assert.Error(t, err)
}

func TestInitScriptBindMount(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	server := AddKingbase(b, "kes").
		WithInitScriptBindMount("scripts/seed.sql").
		WithDataVolume("kes-data").
		Resource()

	mounts := appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](server)
	require.Len(t, mounts, 2)
	assert.Equal(t, "/docker-entrypoint-initdb.d/seed.sql", mounts[0].Target)
	assert.True(t, mounts[0].ReadOnly)
	assert.Equal(t, "kes-data", mounts[1].Source)
	assert.Equal(t, "/home/kingbase/userdata", mounts[1].Target)
}
