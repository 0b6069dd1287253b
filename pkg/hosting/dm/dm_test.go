package dm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

func TestAddDm(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "Dameng123", true).Resource()
	server := AddDm(b, "dm-main", WithPassword(pw), WithPort(15236)).
		WithInitParameter("page_size", "32").
		WithInitParameter("CHARSET", "1").
		Resource()

	img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](server)
	require.True(t, ok)
	assert.Equal(t, "docker.io/cnxc/dm8:20250423-kylin", img.Reference())
	assert.True(t, appmodel.HasAnnotation[*appmodel.PrivilegedAnnotation](server))

	ep, ok := server.PrimaryEndpoint().Annotation()
	require.True(t, ok)
	assert.Equal(t, 5236, ep.TargetPort)
	assert.Equal(t, 15236, ep.Port)

	env, err := appmodel.ResolveEnvironment(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"SYSDBA_PWD":     "Dameng123",
		"SYSAUDITOR_PWD": "Dameng123",
		"INSTANCE_NAME":  "DM_MAIN",
		"PAGE_SIZE":      "32",
		"EXTENT_SIZE":    "32",
		"LOG_SIZE":       "1024",
		"UNICODE_FLAG":   "1",
		"LENGTH_IN_CHAR": "1",
		"CASE_SENSITIVE": "1",
		"CHARSET":        "1",
	}, env)
	assert.True(t, b.HealthChecks().IsRegistered("dm-main_check"))
}

func TestEmptyInitParameterKeyIsAnError(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	AddDm(b, "dm").WithInitParameter(" ", "1")

	_, err := b.Build()
	assert.Error(t, err)
}

func TestGeneratedPasswordHasNoSpecialCharacters(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	server := AddDm(b, "dm").Resource()
	require.NotNil(t, server.PasswordParameter().Default)
	assert.False(t, server.PasswordParameter().Default.Special)
}

func TestDmConnectionStringsAndDSN(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "p@ss:word", true).Resource()
	sb := AddDm(b, "dm", WithPassword(pw))
	db := sb.AddDatabase("sales", "SALES").Resource()

	assert.Equal(t, "SALES", db.SchemaName())
	assert.Equal(t, []*DatabaseResource{db}, sb.Resource().Databases())

	ep, _ := sb.Resource().PrimaryEndpoint().Annotation()
	ep.Allocate("localhost", 40001)

	ctx := context.Background()
	cs, err := sb.Resource().ConnectionStringExpression().GetValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Host=localhost;Port=40001;Username=SYSDBA;Password=p@ss:word", cs)

	dsn, err := DSN(cs)
	require.NoError(t, err)
	assert.Equal(t, "dm://SYSDBA:p%40ss%3Aword@127.0.0.1:40001", dsn)

	cs, err = db.ConnectionStringExpression().GetValue(ctx)
	require.NoError(t, err)
	dsn, err = DSN(cs)
	require.NoError(t, err)
	assert.Equal(t, "dm://SYSDBA:p%40ss%3Aword@127.0.0.1:40001?schema=SALES", dsn)

	assert.Equal(t,
		"Host={dm.bindings.tcp.host};Port={dm.bindings.tcp.port};Username=SYSDBA;Password={pw.value};Database=SALES",
		db.ConnectionStringExpression().ValueExpression())
}

func TestDSNSchemaIsCaseSensitive(t *testing.T) {
	tests := []struct {
		database string
		want     string
	}{
		{"", "dm://SYSDBA:pw@127.0.0.1:5236"},
		{"SYSDBA", "dm://SYSDBA:pw@127.0.0.1:5236"},
		{"sysdba", "dm://SYSDBA:pw@127.0.0.1:5236?schema=sysdba"},
		{"Orders", "dm://SYSDBA:pw@127.0.0.1:5236?schema=Orders"},
	}
	for _, tt := range tests {
		cs := "Host=localhost;Port=5236;Username=SYSDBA;Password=pw"
		if tt.database != "" {
			cs += ";Database=" + tt.database
		}
		dsn, err := DSN(cs)
		require.NoError(t, err, tt.database)
		assert.Equal(t, tt.want, dsn, tt.database)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
}
