// Package migration loads SQL migration files and applies them via RPC or a
// direct database connection, falling back to manual dashboard instructions.
package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docuflow/internal/preflight"
)

var (
	ErrEmptyMigration   = errors.New("migration file is empty")
	ErrUnknownMigration = errors.New("unknown migration")
	ErrChecksumMismatch = errors.New("migration already applied with different content")
)

// Migration is a single SQL file owned by the application schema.
type Migration struct {
	Name     string
	Path     string
	SQL      string
	Checksum string
}

// Built-in migrations shipped with the application repository.
var builtin = map[string]string{
	"document-requests-delete": "supabase/migrations/document_requests_delete.sql",
	"employee-directory":       "supabase/migrations/employee_directory.sql",
}

// Catalog maps migration names to file paths.
type Catalog struct {
	entries map[string]string
}

// NewCatalog returns the built-in catalog extended (or overridden) by extra.
func NewCatalog(extra map[string]string) *Catalog {
	entries := make(map[string]string, len(builtin)+len(extra))
	for k, v := range builtin {
		entries[k] = v
	}
	for k, v := range extra {
		entries[k] = v
	}
	return &Catalog{entries: entries}
}

// Names returns the catalog names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Path returns the file registered under name.
func (c *Catalog) Path(name string) (string, bool) {
	p, ok := c.entries[name]
	return p, ok
}

// Resolve turns a catalog name or a literal .sql path into (name, path).
func (c *Catalog) Resolve(arg string) (string, string, error) {
	if strings.HasSuffix(strings.ToLower(arg), ".sql") {
		return strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg)), arg, nil
	}
	if p, ok := c.entries[arg]; ok {
		return arg, p, nil
	}
	return "", "", fmt.Errorf("%w %q (known: %s)", ErrUnknownMigration, arg, strings.Join(c.Names(), ", "))
}

// Load reads the migration file. A missing file is a precondition failure.
func Load(name, path string) (*Migration, error) {
	if err := preflight.RequireFile(path); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", path, err)
	}
	sql := string(b)
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyMigration, path)
	}
	sum := sha256.Sum256(b)
	return &Migration{
		Name:     name,
		Path:     path,
		SQL:      sql,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
