package migration

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuflow/internal/console"
	"docuflow/internal/preflight"
)

func writeSQL(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestCatalog_Resolve(t *testing.T) {
	c := NewCatalog(map[string]string{
		"audit-log":          "sql/audit_log.sql",
		"employee-directory": "custom/employee_directory.sql",
	})

	name, path, err := c.Resolve("document-requests-delete")
	require.NoError(t, err)
	assert.Equal(t, "document-requests-delete", name)
	assert.Equal(t, "supabase/migrations/document_requests_delete.sql", path)

	_, path, err = c.Resolve("employee-directory")
	require.NoError(t, err)
	assert.Equal(t, "custom/employee_directory.sql", path, "extra entries override built-ins")

	name, path, err = c.Resolve("supabase/migrations/20240101_add_index.sql")
	require.NoError(t, err)
	assert.Equal(t, "20240101_add_index", name)
	assert.Equal(t, "supabase/migrations/20240101_add_index.sql", path)

	_, _, err = c.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownMigration)
	assert.Contains(t, err.Error(), "audit-log")

	assert.Equal(t, []string{"audit-log", "document-requests-delete", "employee-directory"}, c.Names())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := writeSQL(t, dir, "employee_directory.sql", "CREATE TABLE employees (id uuid primary key);\n")

	m, err := Load("employee-directory", p)
	require.NoError(t, err)
	assert.Equal(t, "employee-directory", m.Name)
	assert.Equal(t, "CREATE TABLE employees (id uuid primary key);\n", m.SQL)
	assert.Len(t, m.Checksum, 64)

	again, err := Load("employee-directory", p)
	require.NoError(t, err)
	assert.Equal(t, m.Checksum, again.Checksum)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("x", filepath.Join(t.TempDir(), "missing.sql"))
	require.Error(t, err)
	assert.True(t, preflight.IsPrecondition(err))
	assert.Contains(t, err.Error(), "missing.sql")
}

func TestLoad_Empty(t *testing.T) {
	p := writeSQL(t, t.TempDir(), "empty.sql", "  \n\t\n")
	_, err := Load("empty", p)
	assert.ErrorIs(t, err, ErrEmptyMigration)
}

func TestPrintManual(t *testing.T) {
	p := writeSQL(t, t.TempDir(), "document_requests_delete.sql",
		"CREATE POLICY \"delete own requests\" ON document_requests FOR DELETE USING (auth.uid() = user_id);")
	m, err := Load("document-requests-delete", p)
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintManual(console.New(&buf), m, "https://supabase.com/dashboard/project/abc/sql/new")

	out := buf.String()
	assert.Contains(t, out, "Migration: document-requests-delete")
	assert.Contains(t, out, m.SQL)
	assert.Contains(t, out, "1. Open the SQL editor: https://supabase.com/dashboard/project/abc/sql/new")
	assert.Contains(t, out, "3. Run the query")
}
