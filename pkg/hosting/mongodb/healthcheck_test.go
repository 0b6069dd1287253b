package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/health"
)

func TestIsAlreadyInitialized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"already initialized", mongo.CommandError{Code: 23, Name: "AlreadyInitialized"}, true},
		{"wrapped already initialized", fmt.Errorf("run: %w", mongo.CommandError{Code: 23}), true},
		{"unauthorized", mongo.CommandError{Code: 13, Name: "Unauthorized"}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAlreadyInitialized(tt.err))
		})
	}
}

func TestCheckPrimary(t *testing.T) {
	reply := func(doc bson.D) bson.Raw {
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)
		return raw
	}

	assert.NoError(t, checkPrimary(reply(bson.D{{Key: "ismaster", Value: true}, {Key: "ok", Value: 1.0}})))
	assert.ErrorIs(t, checkPrimary(reply(bson.D{{Key: "ismaster", Value: false}, {Key: "secondary", Value: true}})), ErrNotPrimary)
	assert.ErrorIs(t, checkPrimary(reply(bson.D{{Key: "ok", Value: 1.0}})), ErrNotPrimary)
	assert.Error(t, checkPrimary(bson.Raw{0x01}))
}

type recordedProbes struct {
	pings     []string
	initiates []string
	err       error
}

func (r *recordedProbes) probes() probes {
	return probes{
		ping: func(_ context.Context, cs string) error {
			r.pings = append(r.pings, cs)
			return r.err
		},
		initiate: func(_ context.Context, cs, rs string, memberPort int) error {
			r.initiates = append(r.initiates, fmt.Sprintf("%s@%d", rs, memberPort))
			return r.err
		},
	}
}

func allocatedServer(t *testing.T, sb *ServerBuilder) *ServerResource {
	t.Helper()
	ep, ok := sb.Resource().PrimaryEndpoint().Annotation()
	require.True(t, ok)
	ep.Allocate("127.0.0.1", 37017)
	return sb.Resource()
}

func TestServerCheckStandalonePings(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "secret", true).Resource()
	server := allocatedServer(t, AddMongoDB(b, "mongo", WithPassword(pw)))

	rec := &recordedProbes{}
	res := rec.probes().serverCheck(server)(context.Background())
	assert.Equal(t, health.StatusHealthy, res.Status)
	assert.Len(t, rec.pings, 1)
	assert.Empty(t, rec.initiates)
}

func TestServerCheckInitiatesReplicaSet(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "secret", true).Resource()
	server := allocatedServer(t, AddMongoDB(b, "mongo", WithPassword(pw)).WithReplicaSet("rs1"))

	rec := &recordedProbes{}
	check := rec.probes().serverCheck(server)

	res := check(context.Background())
	assert.Equal(t, health.StatusHealthy, res.Status)
	assert.Empty(t, rec.pings)
	assert.Equal(t, []string{"rs1@27017"}, rec.initiates)

	rec.err = ErrNotPrimary
	res = check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, res.Status)
	assert.ErrorIs(t, res.Err, ErrNotPrimary)
	assert.Len(t, rec.initiates, 2)
}

func TestServerCheckWithoutAllocatedEndpoint(t *testing.T) {
	b := appmodel.NewBuilder(appmodel.BuilderOptions{})
	pw := b.AddParameterWithValue("pw", "secret", true).Resource()
	server := AddMongoDB(b, "mongo", WithPassword(pw)).WithReplicaSet("").Resource()

	rec := &recordedProbes{}
	res := rec.probes().serverCheck(server)(context.Background())
	assert.Equal(t, health.StatusUnhealthy, res.Status)
	assert.ErrorIs(t, res.Err, appmodel.ErrEndpointNotAllocated)
	assert.Empty(t, rec.initiates)
}
