package migration

import (
	"path/filepath"

	"docuflow/internal/console"
)

// PrintManual prints the SQL verbatim followed by instructions for applying it
// in the dashboard SQL editor.
func PrintManual(p *console.Printer, m *Migration, dashboardURL string) {
	p.Title("Migration: %s", m.Name)
	p.Line("File: %s", m.Path)
	p.Line("")
	p.Block(filepath.Base(m.Path), m.SQL)
	p.Line("")
	p.Line("To apply this migration manually:")
	p.Numbered(
		"Open the SQL editor: "+dashboardURL,
		"Paste the SQL shown above into a new query",
		"Run the query and confirm it completes without errors",
		"Verify the schema change in the Table Editor",
	)
}
