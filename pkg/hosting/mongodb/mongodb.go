// Package mongodb runs MongoDB servers, optionally as a single-member
// replica set, as application resources.
package mongodb

import (
	"sync"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

const (
	PrimaryEndpointName = "tcp"
	DefaultUserName     = "admin"
	DefaultReplicaSet   = "rs0"

	keyFilePath = "/data/keyfile"
	keyFileEnv  = "MONGO_KEYFILE"
)

// ServerResource is a MongoDB server container.
type ServerResource struct {
	*appmodel.ContainerResource

	userName *appmodel.ParameterResource
	password *appmodel.ParameterResource

	mu         sync.Mutex
	replicaSet string
	keyFile    *appmodel.ParameterResource
	databases  []*DatabaseResource
}

var _ appmodel.ResourceWithConnectionString = (*ServerResource)(nil)

func (s *ServerResource) PrimaryEndpoint() *appmodel.EndpointReference {
	return appmodel.NewEndpointReference(s, PrimaryEndpointName)
}

func (s *ServerResource) UserNameReference() appmodel.ValueProvider {
	if s.userName != nil {
		return s.userName
	}
	return appmodel.Literal(DefaultUserName)
}

func (s *ServerResource) PasswordParameter() *appmodel.ParameterResource { return s.password }

// ReplicaSet returns the replica set name, empty when standalone.
func (s *ServerResource) ReplicaSet() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replicaSet
}

// ConnectionStringExpression is
// "mongodb://{user}:{password}@{host}:{port}/?authSource=admin&authMechanism=SCRAM-SHA-256".
func (s *ServerResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	return s.connectionString("")
}

func (s *ServerResource) connectionString(database string) *appmodel.ReferenceExpression {
	ep := s.PrimaryEndpoint()
	query := "?authSource=admin&authMechanism=SCRAM-SHA-256"
	if s.ReplicaSet() != "" {
		// A single member reached through a mapped port cannot be discovered
		// under its configured host name.
		query += "&directConnection=true"
	}
	return appmodel.Expr(
		"mongodb://",
		appmodel.Formatted{Value: s.UserNameReference(), Format: appmodel.FormatURI},
		":",
		appmodel.Formatted{Value: s.password, Format: appmodel.FormatURI},
		"@", ep.Property(appmodel.PropertyHost),
		":", ep.Property(appmodel.PropertyPort),
		"/", database, query,
	)
}

func (s *ServerResource) Databases() []*DatabaseResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DatabaseResource(nil), s.databases...)
}

// DatabaseResource is a database inside a MongoDB server.
type DatabaseResource struct {
	*appmodel.ChildResource

	server       *ServerResource
	databaseName string
}

var _ appmodel.ResourceWithConnectionString = (*DatabaseResource)(nil)

func (d *DatabaseResource) DatabaseName() string { return d.databaseName }

func (d *DatabaseResource) Server() *ServerResource { return d.server }

func (d *DatabaseResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	return d.server.connectionString(d.databaseName)
}

// MongoExpressResource is the mongo-express web UI container.
type MongoExpressResource struct {
	*appmodel.ContainerResource
}
