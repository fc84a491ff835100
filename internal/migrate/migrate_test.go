package migrate_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stayspot/stayspot/internal/db/testdb"
	"github.com/stayspot/stayspot/internal/migrate"
)

func migrationFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, data := range files {
		out[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return out
}

func TestRunFS(t *testing.T) {
	ctx := context.Background()

	meta := migrate.Metadata{
		AppVersion: "test",
		Timestamp:  time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}

	t.Run("ok, runs migrations in lexical order", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0001_add_column.sql": `ALTER TABLE things ADD COLUMN name TEXT`,
			"0000_create.sql":     `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		ran, err := migrate.RunFS(ctx, db, fs, meta)
		if err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if len(ran) != 2 {
			t.Fatalf("got %d migrations, want 2", len(ran))
		}

		want := []string{"0000_create.sql", "0001_add_column.sql"}
		for i, m := range ran {
			if m.Sequence != i {
				t.Errorf("got sequence %d, want %d", m.Sequence, i)
			}
			if m.Filename != want[i] {
				t.Errorf("got filename %q, want %q", m.Filename, want[i])
			}
		}

		if _, err := db.Exec(`INSERT INTO things (id, name) VALUES (1, 'a')`); err != nil {
			t.Errorf("schema should be in place: %v", err)
		}
	})

	t.Run("ok, second run only applies new migrations", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		if _, err := migrate.RunFS(ctx, db, fs, meta); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		fs["0001_add_column.sql"] = &fstest.MapFile{
			Data: []byte(`ALTER TABLE things ADD COLUMN name TEXT`),
		}

		ran, err := migrate.RunFS(ctx, db, fs, meta)
		if err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if len(ran) != 1 || ran[0].Filename != "0001_add_column.sql" {
			t.Errorf("got %v, want only the new migration", ran)
		}
	})

	t.Run("ok, run without pending migrations is a no-op", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		if _, err := migrate.RunFS(ctx, db, fs, meta); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		ran, err := migrate.RunFS(ctx, db, fs, meta)
		if err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if len(ran) != 0 {
			t.Errorf("got %d migrations, want 0", len(ran))
		}
	})

	t.Run("ok, non-sql files are ignored", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
			"README.md":       `not a migration`,
		})

		ran, err := migrate.RunFS(ctx, db, fs, meta)
		if err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if len(ran) != 1 {
			t.Errorf("got %d migrations, want 1", len(ran))
		}
	})

	t.Run("fail, renamed migration is detected", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		if _, err := migrate.RunFS(ctx, db, fs, meta); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		renamed := migrationFS(map[string]string{
			"0000_renamed.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		if _, err := migrate.RunFS(ctx, db, renamed, meta); !errors.Is(err, migrate.ErrMismatch) {
			t.Errorf("got %v, want ErrMismatch", err)
		}
	})

	t.Run("fail, missing migration is detected", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql":     `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
			"0001_add_column.sql": `ALTER TABLE things ADD COLUMN name TEXT`,
		})

		if _, err := migrate.RunFS(ctx, db, fs, meta); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		fewer := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
		})

		if _, err := migrate.RunFS(ctx, db, fewer, meta); !errors.Is(err, migrate.ErrMismatch) {
			t.Errorf("got %v, want ErrMismatch", err)
		}
	})

	t.Run("fail, broken sql reports the migration", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_broken.sql": `CREATE TABLE oops oops oops`,
		})

		_, err := migrate.RunFS(ctx, db, fs, meta)

		var migErr migrate.Error
		if !errors.As(err, &migErr) {
			t.Fatalf("got %v, want a migrate.Error", err)
		}

		if migErr.Sequence != 0 || migErr.Filename != "0000_broken.sql" {
			t.Errorf("got %+v, want sequence 0 and the broken filename", migErr)
		}
	})

	t.Run("fail, broken migration leaves the database untouched", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t, true)

		fs := migrationFS(map[string]string{
			"0000_create.sql": `CREATE TABLE things (id INTEGER PRIMARY KEY)`,
			"0001_broken.sql": `THIS IS NOT SQL`,
		})

		if _, err := migrate.RunFS(ctx, db, fs, meta); err == nil {
			t.Fatalf("expected an error")
		}

		// The whole run is one transaction, 0000 must not stick.
		if _, err := db.Exec(`INSERT INTO things (id) VALUES (1)`); err == nil {
			t.Errorf("expected the things table to not exist")
		}
	})
}
