// Package pgadmin adds pgAdmin and pgweb containers that come preconfigured
// with every PostgreSQL compatible server of the application.
package pgadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

const (
	Registry = "docker.io"

	PgAdminName  = "pgadmin"
	PgAdminImage = "dpage/pgadmin4"
	PgAdminTag   = "9.1"

	serversFileTarget = "/pgadmin4/servers.json"
)

// PostgresCompatible is a server that speaks the PostgreSQL wire protocol.
type PostgresCompatible interface {
	appmodel.Resource
	PrimaryEndpoint() *appmodel.EndpointReference
	UserNameReference() appmodel.ValueProvider
	PasswordParameter() *appmodel.ParameterResource
	// MaintenanceDatabase is the database admin tools connect to first.
	MaintenanceDatabase() string
}

// PostgresCompatibleDatabase is a database hosted by a PostgresCompatible server.
type PostgresCompatibleDatabase interface {
	appmodel.ResourceWithParent
	DatabaseName() string
	Server() PostgresCompatible
}

// PgAdminResource is the pgAdmin web UI container.
type PgAdminResource struct {
	*appmodel.ContainerResource
}

// AddPgAdmin adds the pgadmin container, or returns the existing one. In
// both cases configure is applied.
func AddPgAdmin(b *appmodel.Builder, configure func(*appmodel.ResourceBuilder[*PgAdminResource])) *appmodel.ResourceBuilder[*PgAdminResource] {
	if existing, ok := b.FindResource(PgAdminName); ok {
		if r, ok := existing.(*PgAdminResource); ok {
			rb := appmodel.NewResourceBuilder(b, r)
			if configure != nil {
				configure(rb)
			}
			return rb
		}
	}

	r := &PgAdminResource{ContainerResource: appmodel.NewContainerResource(PgAdminName)}
	rb := appmodel.AddResource(b, r).
		WithImage(PgAdminImage, PgAdminTag).
		WithImageRegistry(Registry).
		WithHTTPEndpoint("http", 80, 0).
		WithEnvironment("PGADMIN_CONFIG_MASTER_PASSWORD_REQUIRED", "False").
		WithEnvironment("PGADMIN_CONFIG_SERVER_MODE", "False").
		WithEnvironment("PGADMIN_DEFAULT_EMAIL", "admin@domain.com").
		WithEnvironment("PGADMIN_DEFAULT_PASSWORD", "admin").
		ExcludeFromManifest().
		OnBeforeStart(writeServersFile)

	if configure != nil {
		configure(rb)
	}
	return rb
}

type serverEntry struct {
	Name                string `json:"Name"`
	Group               string `json:"Group"`
	Host                string `json:"Host"`
	Port                int    `json:"Port"`
	Username            string `json:"Username"`
	SSLMode             string `json:"SSLMode"`
	MaintenanceDB       string `json:"MaintenanceDB"`
	PasswordExecCommand string `json:"PasswordExecCommand"`
}

type serversFile struct {
	Servers map[string]serverEntry `json:"Servers"`
}

// Servers lists the PostgresCompatible servers of app in declaration order.
func Servers(app *appmodel.Application) []PostgresCompatible {
	var out []PostgresCompatible
	for _, r := range app.Resources() {
		if s, ok := r.(PostgresCompatible); ok {
			out = append(out, s)
		}
	}
	return out
}

// ServersJSON renders the pgAdmin server definitions for app, addressed on
// the container network.
func ServersJSON(ctx context.Context, app *appmodel.Application) ([]byte, error) {
	file := serversFile{Servers: make(map[string]serverEntry)}
	for i, s := range Servers(app) {
		ep, ok := s.PrimaryEndpoint().Annotation()
		if !ok {
			return nil, fmt.Errorf("server %s has no endpoint %s", s.Name(), s.PrimaryEndpoint().EndpointName())
		}
		user, err := s.UserNameReference().GetValue(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user name of %s: %w", s.Name(), err)
		}
		password, err := s.PasswordParameter().GetValue(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve password of %s: %w", s.Name(), err)
		}
		file.Servers[strconv.Itoa(i+1)] = serverEntry{
			Name:                s.Name(),
			Group:               "Servers",
			Host:                appmodel.ContainerHostName(s),
			Port:                ep.TargetPort,
			Username:            user,
			SSLMode:             "prefer",
			MaintenanceDB:       s.MaintenanceDatabase(),
			PasswordExecCommand: passwordCommand(password),
		}
	}
	return json.MarshalIndent(file, "", "  ")
}

// passwordCommand prints password from a shell. The password is single
// quoted so no character in it is interpreted by the shell.
func passwordCommand(password string) string {
	return "printf '%s' " + shellQuote(password)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func writeServersFile(ctx context.Context, ev appmodel.BeforeStartEvent) error {
	data, err := ServersJSON(ctx, ev.Application)
	if err != nil {
		return err
	}
	dir := filepath.Join(ev.WorkDir, PgAdminName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "servers.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	setBindMount(ev.Resource, path, serversFileTarget)
	return nil
}

// setBindMount points the mount at target to source, adding it if missing.
func setBindMount(r appmodel.Resource, source, target string) {
	for _, m := range appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](r) {
		if m.Target == target {
			m.Type = appmodel.MountTypeBind
			m.Source = source
			return
		}
	}
	r.Annotations().Add(&appmodel.ContainerMountAnnotation{
		Type:     appmodel.MountTypeBind,
		Source:   source,
		Target:   target,
		ReadOnly: true,
	})
}
