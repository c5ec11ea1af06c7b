// Package dav syncs entities with WebDAV servers: tasks as VTODO objects of a
// CalDAV calendar, and whole entities as org documents in a WebDAV folder.
package dav

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav"

	"github.com/harrisonrobin/lamp/pkg/adapter"
)

// CredentialService is the credential a source keeps its password under.
func CredentialService(cfg adapter.Config) string {
	if cfg.Credential != "" {
		return cfg.Credential
	}
	return "dav:" + cfg.Name
}

// HTTPClient returns the client a source talks through, with basic auth when
// the source names a user.
func HTTPClient(cfg adapter.Config, secrets adapter.Secrets) (webdav.HTTPClient, error) {
	var c webdav.HTTPClient = &http.Client{Timeout: time.Minute}
	if cfg.Username == "" {
		return c, nil
	}
	password, err := secrets.Get(CredentialService(cfg))
	if err != nil {
		return nil, fmt.Errorf("source %s: no password stored: %w", cfg.Name, err)
	}
	return webdav.HTTPClientWithBasicAuth(c, cfg.Username, password), nil
}

// tagOf returns the entity tag of a listed file, or a tag derived from its
// modification time and size when the server sends none.
func tagOf(fi webdav.FileInfo) string {
	if fi.ETag != "" {
		return fi.ETag
	}
	return fmt.Sprintf("%x-%x", fi.ModTime.UnixNano(), fi.Size)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// exists reports whether the collection dir lists p.
func exists(ctx context.Context, c *webdav.Client, dir, p string) (bool, error) {
	files, err := c.ReadDir(ctx, dir, false)
	if err != nil {
		return false, err
	}
	want := cleanPath(p)
	for _, fi := range files {
		if !fi.IsDir && cleanPath(fi.Path) == want {
			return true, nil
		}
	}
	return false, nil
}

// ensureDir creates dir when it cannot be found.
func ensureDir(ctx context.Context, c *webdav.Client, dir string) error {
	if cleanPath(dir) == "/" {
		return nil
	}
	if _, err := c.Stat(ctx, dir); err == nil {
		return nil
	}
	if err := c.Mkdir(ctx, dir); err != nil {
		return fmt.Errorf("create collection %s: %w", dir, err)
	}
	return nil
}
