package pgadmin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

const (
	PgWebName  = "pgweb"
	PgWebImage = "sosedoff/pgweb"
	PgWebTag   = "0.16.2"

	bookmarksTarget = "/.pgweb/bookmarks"
)

// PgWebResource is the pgweb container.
type PgWebResource struct {
	*appmodel.ContainerResource
}

// AddPgWeb adds the pgweb container, or returns the existing one. In both
// cases configure is applied.
func AddPgWeb(b *appmodel.Builder, configure func(*appmodel.ResourceBuilder[*PgWebResource])) *appmodel.ResourceBuilder[*PgWebResource] {
	if existing, ok := b.FindResource(PgWebName); ok {
		if r, ok := existing.(*PgWebResource); ok {
			rb := appmodel.NewResourceBuilder(b, r)
			if configure != nil {
				configure(rb)
			}
			return rb
		}
	}

	r := &PgWebResource{ContainerResource: appmodel.NewContainerResource(PgWebName)}
	rb := appmodel.AddResource(b, r).
		WithImage(PgWebImage, PgWebTag).
		WithImageRegistry(Registry).
		WithHTTPEndpoint("http", 8081, 0).
		WithArgs("--bookmarks-dir="+bookmarksTarget, "--sessions").
		ExcludeFromManifest().
		OnBeforeStart(writeBookmarks)

	if configure != nil {
		configure(rb)
	}
	return rb
}

// Bookmark is a pgweb connection bookmark.
type Bookmark struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// BookmarkFor builds the bookmark of db, addressed on the container network.
func BookmarkFor(ctx context.Context, db PostgresCompatibleDatabase) (Bookmark, error) {
	server := db.Server()
	ep, ok := server.PrimaryEndpoint().Annotation()
	if !ok {
		return Bookmark{}, fmt.Errorf("server %s has no endpoint %s", server.Name(), server.PrimaryEndpoint().EndpointName())
	}
	user, err := server.UserNameReference().GetValue(ctx)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to resolve user name of %s: %w", server.Name(), err)
	}
	password, err := server.PasswordParameter().GetValue(ctx)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to resolve password of %s: %w", server.Name(), err)
	}
	return Bookmark{
		Host:     appmodel.ContainerHostName(server),
		Port:     ep.TargetPort,
		User:     user,
		Password: password,
		Database: db.DatabaseName(),
		SSLMode:  "disable",
	}, nil
}

func writeBookmarks(ctx context.Context, ev appmodel.BeforeStartEvent) error {
	dir := filepath.Join(ev.WorkDir, PgWebName, "bookmarks")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, r := range ev.Application.Resources() {
		db, ok := r.(PostgresCompatibleDatabase)
		if !ok {
			continue
		}
		bm, err := BookmarkFor(ctx, db)
		if err != nil {
			return err
		}
		data, err := toml.Marshal(bm)
		if err != nil {
			return fmt.Errorf("failed to encode bookmark %s: %w", db.Name(), err)
		}
		path := filepath.Join(dir, db.Name()+".toml")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	setBindMount(ev.Resource, dir, bookmarksTarget)
	return nil
}
