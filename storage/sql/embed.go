package sql

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
)

const schemaDir = "schema"

// SchemaFS contains all SQL migration files under storage/sql/schema/
//
//go:embed schema/*.sql
var SchemaFS embed.FS

// Migrations returns the names of the embedded migrations, in apply order
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(SchemaFS, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("unable to list migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		names = append(names, entry.Name())
	}

	slices.Sort(names)

	return names, nil
}

// Migration returns the SQL of the named embedded migration
func Migration(name string) (string, error) {
	b, err := SchemaFS.ReadFile(schemaDir + "/" + name)
	if err != nil {
		return "", fmt.Errorf("unable to read migration %q: %w", name, err)
	}

	return string(b), nil
}
