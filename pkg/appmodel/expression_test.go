package appmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticValue string

func (s staticValue) GetValue(context.Context) (string, error) { return string(s), nil }

type failingValue struct{}

func (failingValue) GetValue(context.Context) (string, error) {
	return "", errors.New("boom")
}

func newServer(t *testing.T) (*Builder, *ResourceBuilder[*ContainerResource]) {
	t.Helper()
	b := NewBuilder(BuilderOptions{AppName: "test"})
	rb := b.AddContainer("db", "example/db", "1.0").WithEndpoint("tcp", 5432, 0, "tcp")
	return b, rb
}

func TestExprResolvesEndpointsOnHostNetwork(t *testing.T) {
	_, rb := newServer(t)
	ep := rb.GetEndpoint("tcp")

	expr := Expr("Host=", ep.Property(PropertyHost), ";Port=", ep.Property(PropertyPort))

	_, err := expr.GetValue(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndpointNotAllocated)

	ann, ok := ep.Annotation()
	require.True(t, ok)
	ann.Allocate("localhost", 61000)

	v, err := expr.GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Host=localhost;Port=61000", v)
}

func TestExprResolvesEndpointsOnContainerNetwork(t *testing.T) {
	_, rb := newServer(t)
	ep := rb.GetEndpoint("tcp")

	expr := Expr("Host=", ep.Property(PropertyHost), ";Port=", ep.Property(PropertyPort))

	// no allocation needed inside the container network
	v, err := expr.GetValue(WithContainerNetwork(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "Host=db;Port=5432", v)

	rb.WithContainerName("db-main")
	v, err = ep.Property(PropertyHostAndPort).GetValue(WithContainerNetwork(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "db-main:5432", v)
}

func TestExprURIFormat(t *testing.T) {
	expr := Expr("mongodb://", Formatted{Value: staticValue("ad min"), Format: FormatURI}, ":",
		Formatted{Value: staticValue("p@ss:w/rd+"), Format: FormatURI}, "@h")

	v, err := expr.GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mongodb://ad%20min:p%40ss%3Aw%2Frd%2B@h", v)
}

func TestExprProviderErrorAborts(t *testing.T) {
	expr := Expr("a", failingValue{}, "b")
	_, err := expr.GetValue(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestExprValueExpression(t *testing.T) {
	b, rb := newServer(t)
	pw := CreateDefaultPasswordParameter(b, "db", false)
	ep := rb.GetEndpoint("tcp")

	expr := Expr("Host=", ep.Property(PropertyHost), ";Password=", Formatted{Value: pw, Format: FormatURI})
	assert.Equal(t, "Host={db.bindings.tcp.host};Password={db-password.value:uri}", expr.ValueExpression())

	child := Expr(expr, ";Database=app")
	assert.Equal(t, "Host={db.bindings.tcp.host};Password={db-password.value:uri};Database=app", child.ValueExpression())
	assert.Len(t, child.ValueProviders(), 1)
}

func TestExprAppendDoesNotAlias(t *testing.T) {
	base := Expr("a", staticValue("b"))
	one := base.Append("1")
	two := base.Append("2")

	v1, err := one.GetValue(context.Background())
	require.NoError(t, err)
	v2, err := two.GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ab1", v1)
	assert.Equal(t, "ab2", v2)
}

func TestExprPanicsOnUnsupportedPart(t *testing.T) {
	assert.Panics(t, func() { Expr(42) })
}

func TestEndpointURLAndScheme(t *testing.T) {
	b := NewBuilder(BuilderOptions{AppName: "test"})
	rb := b.AddContainer("ui", "example/ui", "1").WithHTTPEndpoint("", 8080, 18080)
	ann, ok := rb.GetEndpoint("http").Annotation()
	require.True(t, ok)
	ann.Allocate("localhost", 18080)

	url, err := rb.GetEndpoint("http").GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:18080", url)

	target, err := rb.GetEndpoint("http").Property(PropertyTargetPort).GetValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8080", target)

	_, err = rb.GetEndpoint("missing").GetValue(context.Background())
	assert.Error(t, err)
}
