package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var defaultMigrations embed.FS

// MigrationResult captures the outcome of a migration run. cmd/walletd logs
// it at startup; /startupz does not report it.
type MigrationResult struct {
	Applied   int
	LastError string
}

// MigratePostgres lists a configured directory of ordered schema files,
// sorts them lexicographically, and applies each in order. When dir is
// empty, the bundled default migrations are used.
func MigratePostgres(ctx context.Context, db *sql.DB, dir string) MigrationResult {
	files, err := loadMigrationFiles(dir)
	if err != nil {
		return MigrationResult{LastError: err.Error()}
	}
	sort.Strings(files.names)

	result := MigrationResult{}
	for _, name := range files.names {
		for _, stmt := range splitStatements(files.contents[name]) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				result.LastError = fmt.Sprintf("%s: %v", name, err)
				return result
			}
		}
		result.Applied++
	}
	return result
}

// splitStatements breaks a migration file into individual statements on
// ";" so each is sent to the driver separately; some pgx driver paths do
// not support multi-statement simple-query execution. Whole-line "--"
// comments are stripped before a statement is kept.
func splitStatements(content string) []string {
	var out []string
	for _, raw := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		s := strings.TrimSpace(strings.Join(lines, "\n"))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

type migrationFiles struct {
	names    []string
	contents map[string]string
}

func loadMigrationFiles(dir string) (migrationFiles, error) {
	out := migrationFiles{contents: make(map[string]string)}

	if dir == "" {
		entries, err := defaultMigrations.ReadDir("migrations")
		if err != nil {
			return out, fmt.Errorf("read embedded migrations: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
				continue
			}
			data, err := defaultMigrations.ReadFile(filepath.Join("migrations", e.Name()))
			if err != nil {
				return out, fmt.Errorf("read %s: %w", e.Name(), err)
			}
			out.names = append(out.names, e.Name())
			out.contents[e.Name()] = string(data)
		}
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out, fmt.Errorf("read migration dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return out, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out.names = append(out.names, e.Name())
		out.contents[e.Name()] = string(data)
	}
	return out, nil
}
