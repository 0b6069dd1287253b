// Package dm runs DM8 (Dameng) servers as application resources.
package dm

import (
	"sort"
	"strings"
	"sync"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
)

const (
	PrimaryEndpointName = "tcp"
	// UserName is the built-in administrator; the image creates no other accounts.
	UserName = "SYSDBA"
)

// defaultInitParameters are passed to dminit on first start.
var defaultInitParameters = map[string]string{
	"PAGE_SIZE":      "16",
	"EXTENT_SIZE":    "32",
	"LOG_SIZE":       "1024",
	"UNICODE_FLAG":   "1",
	"LENGTH_IN_CHAR": "1",
	"CASE_SENSITIVE": "1",
}

// ServerResource is a DM8 server container.
type ServerResource struct {
	*appmodel.ContainerResource

	password *appmodel.ParameterResource

	mu         sync.Mutex
	initParams map[string]string
	databases  []*DatabaseResource
}

var _ appmodel.ResourceWithConnectionString = (*ServerResource)(nil)

func (s *ServerResource) PrimaryEndpoint() *appmodel.EndpointReference {
	return appmodel.NewEndpointReference(s, PrimaryEndpointName)
}

func (s *ServerResource) PasswordParameter() *appmodel.ParameterResource { return s.password }

// InstanceName is the DM instance name derived from the resource name.
func (s *ServerResource) InstanceName() string {
	return strings.ToUpper(strings.ReplaceAll(s.Name(), "-", "_"))
}

// InitParameters returns the dminit parameters sorted by key.
func (s *ServerResource) InitParameters() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.initParams))
	for k := range s.initParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, s.initParams[k]})
	}
	return out
}

func (s *ServerResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	ep := s.PrimaryEndpoint()
	return appmodel.Expr(
		"Host=", ep.Property(appmodel.PropertyHost),
		";Port=", ep.Property(appmodel.PropertyPort),
		";Username=", UserName,
		";Password=", s.password,
	)
}

func (s *ServerResource) Databases() []*DatabaseResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DatabaseResource(nil), s.databases...)
}

// DatabaseResource is a schema owned by SYSDBA. DM has one database per
// instance, so schemas play the role of databases.
type DatabaseResource struct {
	*appmodel.ChildResource

	server     *ServerResource
	schemaName string
}

var _ appmodel.ResourceWithConnectionString = (*DatabaseResource)(nil)

func (d *DatabaseResource) SchemaName() string { return d.schemaName }

func (d *DatabaseResource) Server() *ServerResource { return d.server }

func (d *DatabaseResource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	return d.server.ConnectionStringExpression().Append(";Database=", d.schemaName)
}

func dataPath() string {
	return dbcapabilities.MustGet(dbcapabilities.Dameng).DataPath
}
