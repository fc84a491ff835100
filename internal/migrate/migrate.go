// Package migrate runs SQL migrations embedded in the binary.
//
// Migrations are plain .sql files applied in lexical order. Every
// applied migration is recorded in a migrations table, on the next run
// the recorded migrations are verified against the available files
// before any new ones are applied.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// Migration is a migration that was ran.
type Migration struct {
	// Sequence is the number of the migration. Starts at 0.
	Sequence int
	Filename string
	Metadata Metadata
}

// Metadata contains metadata about a migration run.
// If something does go wrong, this will help with debugging.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

const migrationsTableQuery = `CREATE TABLE IF NOT EXISTS migrations (
	sequence    INTEGER PRIMARY KEY,
	filename    TEXT NOT NULL,
	app_version TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL
)
`

var (
	// ErrMismatch indicates a mismatch between migrations that ran
	// before and the files available now.
	ErrMismatch = errors.New("migrations mismatch")
)

// Error is an error that occurred while running a single migration.
type Error struct {
	Sequence int
	Filename string
	Err      error
}

func (e Error) Error() string {
	return fmt.Sprintf("migration [%d] %q failed: %v", e.Sequence, e.Filename, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// RunFS runs migrations from the provided fs.FS. It returns the
// migrations that were run, if no migrations were run it returns an
// empty slice. RunFS only considers files with the .sql extension in
// the root of the FS and assumes they all fit in memory.
func RunFS(ctx context.Context, db *sql.DB, fileSys fs.FS, meta Metadata) ([]Migration, error) {
	files, err := loadFiles(fileSys)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(migrationsTableQuery); err != nil {
		return nil, rollback(tx, fmt.Errorf("failed to create migrations table: %w", err))
	}

	before, err := queryRanBefore(tx)
	if err != nil {
		return nil, rollback(tx, err)
	}

	ran, err := runPending(tx, before, files, meta)
	if err != nil {
		return nil, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ran, nil
}

type file struct {
	name string
	data string
}

func loadFiles(fileSys fs.FS) ([]file, error) {
	entries, err := fs.ReadDir(fileSys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		data, err := fs.ReadFile(fileSys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %q: %w", entry.Name(), err)
		}

		files = append(files, file{
			name: entry.Name(),
			data: string(data),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})

	return files, nil
}

func queryRanBefore(tx *sql.Tx) ([]Migration, error) {
	rows, err := tx.Query(`SELECT sequence, filename, app_version, timestamp FROM migrations ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}

	defer rows.Close()

	out := make([]Migration, 0)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Sequence, &m.Filename, &m.Metadata.AppVersion, &m.Metadata.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migrations: %w", err)
	}

	return out, nil
}

func runPending(tx *sql.Tx, ranBefore []Migration, files []file, meta Metadata) ([]Migration, error) {
	if len(ranBefore) > len(files) {
		return nil, fmt.Errorf(
			"found %d existing migrations but only have %d files: %w",
			len(ranBefore), len(files), ErrMismatch,
		)
	}

	// Verify the files that ran before are unchanged.
	for i, before := range ranBefore {
		if i != before.Sequence {
			return nil, fmt.Errorf("migration sequence mismatch, wanted %d got %d: %w", i, before.Sequence, ErrMismatch)
		}

		if files[i].name != before.Filename {
			return nil, fmt.Errorf("migration filename mismatch, wanted %q got %q: %w", files[i].name, before.Filename, ErrMismatch)
		}
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	ran := make([]Migration, 0, len(files)-len(ranBefore))
	for i := len(ranBefore); i < len(files); i++ {
		f := files[i]

		if _, err := tx.Exec(f.data); err != nil {
			return nil, Error{Sequence: i, Filename: f.name, Err: err}
		}

		_, err := tx.Exec(
			`INSERT INTO migrations (sequence, filename, app_version, timestamp) VALUES (?, ?, ?, ?)`,
			i, f.name, meta.AppVersion, meta.Timestamp,
		)
		if err != nil {
			return nil, Error{Sequence: i, Filename: f.name, Err: err}
		}

		ran = append(ran, Migration{
			Sequence: i,
			Filename: f.name,
			Metadata: meta,
		})
	}

	return ran, nil
}

func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}
