package schema

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// Ensure applies every embedded schema file to the database in file name
// order. Files create objects only if they are missing, so Ensure can run on
// every startup. Nothing records which files ran: there is no migration
// history and no support for altering existing tables.
func Ensure(ctx context.Context, db *sql.DB) error {
	files, err := listSchemaFiles()
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}

	for _, filename := range files {
		if err := applyFile(ctx, db, filename); err != nil {
			return fmt.Errorf("apply schema %s: %w", filename, err)
		}
		slog.Debug("schema applied", "file", filename)
	}

	return nil
}

func listSchemaFiles() ([]string, error) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyFile(ctx context.Context, db *sql.DB, filename string) error {
	content, err := fs.ReadFile(FS, filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute sql: %w", err)
	}

	return tx.Commit()
}
