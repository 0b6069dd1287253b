package apphostfile

import (
	"fmt"
	"sort"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/hosting/dm"
	"github.com/redbco/redb-apphost/pkg/hosting/kingbase"
	"github.com/redbco/redb-apphost/pkg/hosting/mongodb"
	"github.com/redbco/redb-apphost/pkg/hosting/opengauss"
)

// Build creates the application model described by f. opts.AppName
// defaults to the file name.
func Build(f *File, opts appmodel.BuilderOptions) (*appmodel.Application, error) {
	if opts.AppName == "" {
		opts.AppName = f.Name
	}
	b := appmodel.NewBuilder(opts)

	addParameters(b, f.Parameters)

	for _, r := range f.Resources {
		if err := addResource(b, r); err != nil {
			return nil, err
		}
	}

	// Relationships are applied once every resource exists so that files
	// may reference resources declared further down.
	for _, r := range f.Resources {
		if err := addRelationships(b, r); err != nil {
			return nil, err
		}
	}

	return b.Build()
}

func addParameters(b *appmodel.Builder, params map[string]Parameter) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := params[name]
		switch {
		case p.Value != nil:
			b.AddParameterWithValue(name, *p.Value, p.Secret)
		case p.Generate != nil:
			def := appmodel.PasswordDefault(p.Generate.Special)
			if p.Generate.MinLength > 0 {
				def.MinLength = p.Generate.MinLength
			}
			appmodel.CreateGeneratedParameter(b, name, p.Secret, def)
		default:
			b.AddParameter(name, p.Secret)
		}
	}
}

func parameter(b *appmodel.Builder, name string) *appmodel.ParameterResource {
	if name == "" {
		return nil
	}
	r, ok := b.FindResource(name)
	if !ok {
		return nil
	}
	p, _ := r.(*appmodel.ParameterResource)
	return p
}

func addResource(b *appmodel.Builder, r Resource) error {
	if r.Kind == KindContainer {
		rb := b.AddContainer(r.Name, r.Image, r.Tag)
		for _, ep := range r.Endpoints {
			if ep.Scheme == "http" {
				rb.WithHTTPEndpoint(ep.Name, ep.TargetPort, ep.Port)
			} else {
				rb.WithEndpoint(ep.Name, ep.TargetPort, ep.Port, ep.Scheme)
			}
		}
		keys := make([]string, 0, len(r.Env))
		for k := range r.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rb.WithEnvironment(k, r.Env[k])
		}
		if len(r.Args) > 0 {
			args := make([]any, 0, len(r.Args))
			for _, a := range r.Args {
				args = append(args, a)
			}
			rb.WithArgs(args...)
		}
		if r.DataBindMount != "" {
			return fmt.Errorf("resource %s: data_bind_mount is only supported by database servers", r.Name)
		}
		return nil
	}

	id, _ := dbcapabilities.ParseID(r.Kind)
	switch id {
	case dbcapabilities.OpenGauss:
		var opts []opengauss.Option
		if p := parameter(b, r.UserParameter); p != nil {
			opts = append(opts, opengauss.WithUserName(p))
		}
		if p := parameter(b, r.PasswordParameter); p != nil {
			opts = append(opts, opengauss.WithPassword(p))
		}
		sb := opengauss.AddOpenGauss(b, r.Name, append(opts, opengauss.WithPort(r.Port))...)
		if r.DataVolume != "" {
			sb.WithDataVolume(volumeName(r.DataVolume))
		}
		if r.DataBindMount != "" {
			sb.WithDataBindMount(r.DataBindMount)
		}
		if r.InitBindMount != "" {
			sb.WithInitBindMount(r.InitBindMount)
		}
		if r.PgAdmin {
			sb.WithPgAdmin(nil)
		}
		if r.PgWeb {
			sb.WithPgWeb(nil)
		}
		for _, db := range r.Databases {
			sb.AddDatabase(db.Name, db.Database)
		}

	case dbcapabilities.KingbaseES:
		var opts []kingbase.Option
		if p := parameter(b, r.UserParameter); p != nil {
			opts = append(opts, kingbase.WithUserName(p))
		}
		if p := parameter(b, r.PasswordParameter); p != nil {
			opts = append(opts, kingbase.WithPassword(p))
		}
		sb := kingbase.AddKingbase(b, r.Name, append(opts, kingbase.WithPort(r.Port))...)
		if r.Mode != "" {
			sb.WithDatabaseMode(kingbase.DatabaseMode(r.Mode))
		}
		if r.DataVolume != "" {
			sb.WithDataVolume(volumeName(r.DataVolume))
		}
		if r.DataBindMount != "" {
			sb.WithDataBindMount(r.DataBindMount)
		}
		if r.InitBindMount != "" {
			sb.WithInitScriptBindMount(r.InitBindMount)
		}
		if r.PgAdmin {
			sb.WithPgAdmin(nil)
		}
		if r.PgWeb {
			sb.WithPgWeb(nil)
		}
		for _, db := range r.Databases {
			sb.AddDatabase(db.Name, db.Database)
		}

	case dbcapabilities.Dameng:
		opts := []dm.Option{dm.WithPort(r.Port)}
		if p := parameter(b, r.PasswordParameter); p != nil {
			opts = append(opts, dm.WithPassword(p))
		}
		sb := dm.AddDm(b, r.Name, opts...)
		keys := make([]string, 0, len(r.InitParameters))
		for k := range r.InitParameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WithInitParameter(k, r.InitParameters[k])
		}
		if r.DataVolume != "" {
			sb.WithDataVolume(volumeName(r.DataVolume))
		}
		if r.DataBindMount != "" {
			sb.WithDataBindMount(r.DataBindMount)
		}
		if r.InitBindMount != "" {
			return fmt.Errorf("resource %s: init_bind_mount is not supported by %s", r.Name, id)
		}
		for _, db := range r.Databases {
			sb.AddDatabase(db.Name, db.Database)
		}

	case dbcapabilities.MongoDB:
		var opts []mongodb.Option
		if p := parameter(b, r.UserParameter); p != nil {
			opts = append(opts, mongodb.WithUserName(p))
		}
		if p := parameter(b, r.PasswordParameter); p != nil {
			opts = append(opts, mongodb.WithPassword(p))
		}
		sb := mongodb.AddMongoDB(b, r.Name, append(opts, mongodb.WithPort(r.Port))...)
		if r.ReplicaSet != "" {
			sb.WithReplicaSet(r.ReplicaSet)
		}
		if r.DataVolume != "" {
			sb.WithDataVolume(volumeName(r.DataVolume))
		}
		if r.DataBindMount != "" {
			sb.WithDataBindMount(r.DataBindMount)
		}
		if r.InitBindMount != "" {
			sb.WithInitBindMount(r.InitBindMount)
		}
		if r.MongoExpress {
			sb.WithMongoExpress(nil)
		}
		for _, db := range r.Databases {
			sb.AddDatabase(db.Name, db.Database)
		}

	default:
		return fmt.Errorf("resource %s: unknown kind %q", r.Name, r.Kind)
	}
	return nil
}

// volumeName maps data_volume "true" to a derived name.
func volumeName(v string) string {
	if v == "true" {
		return ""
	}
	return v
}

func addRelationships(b *appmodel.Builder, r Resource) error {
	res, ok := b.FindResource(r.Name)
	if !ok {
		// Registration failed; the builder already recorded why.
		return nil
	}
	rb := appmodel.NewResourceBuilder(b, res)

	if r.ContainerName != "" {
		rb.WithContainerName(r.ContainerName)
	}
	if r.Lifetime != "" {
		rb.WithLifetime(appmodel.ContainerLifetime(r.Lifetime))
	}

	for _, name := range r.References {
		target, ok := b.FindResource(name)
		if !ok {
			return fmt.Errorf("resource %s: unknown reference %q", r.Name, name)
		}
		cs, ok := target.(appmodel.ResourceWithConnectionString)
		if !ok {
			return fmt.Errorf("resource %s: %s has no connection string", r.Name, name)
		}
		rb.WithReference(cs)
	}

	for _, name := range r.WaitFor {
		target, ok := b.FindResource(name)
		if !ok {
			return fmt.Errorf("resource %s: unknown wait target %q", r.Name, name)
		}
		rb.WaitFor(target)
	}
	for _, name := range r.WaitForStart {
		target, ok := b.FindResource(name)
		if !ok {
			return fmt.Errorf("resource %s: unknown wait target %q", r.Name, name)
		}
		rb.WaitForStart(target)
	}
	return nil
}
