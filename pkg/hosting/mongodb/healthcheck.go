package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/hosting/internal/probe"
)

const (
	connectTimeout = 5 * time.Second

	// codeAlreadyInitialized is returned by replSetInitiate on an initiated set.
	codeAlreadyInitialized = 23
)

// ErrNotPrimary reports a replica set member that has not been elected yet.
var ErrNotPrimary = errors.New("not primary yet")

// probes are the calls a server check makes.
type probes struct {
	ping     probe.Func
	initiate func(ctx context.Context, connectionString, replicaSet string, memberPort int) error
}

var defaultProbes = probes{ping: Ping, initiate: InitiateReplicaSet}

func serverCheck(s *ServerResource) health.CheckFunc {
	return defaultProbes.serverCheck(s)
}

// serverCheck pings a standalone server. With a replica set every call
// initiates the set (if needed) and reports whether the member is primary.
func (p probes) serverCheck(s *ServerResource) health.CheckFunc {
	return func(ctx context.Context) health.Result {
		cs, err := s.ConnectionStringExpression().GetValue(ctx)
		if err != nil {
			return health.Unhealthy("connection string is not available", err)
		}
		rs := s.ReplicaSet()
		if rs == "" {
			return probe.Result(p.ping(ctx, cs))
		}
		ep, ok := s.PrimaryEndpoint().Annotation()
		if !ok {
			return health.Unhealthy(fmt.Sprintf("endpoint %s is missing", PrimaryEndpointName), nil)
		}
		if err := p.initiate(ctx, cs, rs, ep.TargetPort); err != nil {
			return health.Unhealthy("replica set is not ready", err)
		}
		return health.Healthy("")
	}
}

func databaseCheck(d *DatabaseResource) health.CheckFunc {
	return probe.Check(d.ConnectionStringExpression(), Ping)
}

func connect(connectionString string) (*mongo.Client, error) {
	clientOptions := mongooptions.Client().
		ApplyURI(connectionString).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return client, nil
}

// Ping connects with a mongodb:// URI and pings the primary.
func Ping(ctx context.Context, connectionString string) error {
	client, err := connect(connectionString)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

// InitiateReplicaSet runs replSetInitiate for a single member reachable as
// localhost:<memberPort> inside the container, then reports whether the
// member is primary. An already initiated set is not an error.
func InitiateReplicaSet(ctx context.Context, connectionString, replicaSet string, memberPort int) error {
	client, err := connect(connectionString)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	admin := client.Database("admin")

	config := bson.D{
		{Key: "_id", Value: replicaSet},
		{Key: "members", Value: bson.A{
			bson.D{
				{Key: "_id", Value: 0},
				{Key: "host", Value: fmt.Sprintf("localhost:%d", memberPort)},
			},
		}},
	}
	err = admin.RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: config}}).Err()
	if err != nil && !isAlreadyInitialized(err) {
		return fmt.Errorf("replSetInitiate failed: %w", err)
	}

	reply, err := admin.RunCommand(ctx, bson.D{{Key: "isMaster", Value: 1}}).Raw()
	if err != nil {
		return fmt.Errorf("isMaster failed: %w", err)
	}
	return checkPrimary(reply)
}

func isAlreadyInitialized(err error) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorCode(codeAlreadyInitialized)
}

// checkPrimary returns ErrNotPrimary unless the isMaster reply says ismaster.
func checkPrimary(reply bson.Raw) error {
	var isMaster struct {
		IsMaster bool `bson:"ismaster"`
	}
	if err := bson.Unmarshal(reply, &isMaster); err != nil {
		return fmt.Errorf("invalid isMaster reply: %w", err)
	}
	if !isMaster.IsMaster {
		return ErrNotPrimary
	}
	return nil
}
