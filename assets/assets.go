// Package assets contains the files embedded in the binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed emails/*.tmpl
var emailFS embed.FS

var (
	MigrationFS fs.FS
	EmailFS     fs.FS
)

func init() {
	var err error

	MigrationFS, err = fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic("failed to subtree migration FS " + err.Error())
	}

	EmailFS, err = fs.Sub(emailFS, "emails")
	if err != nil {
		panic("failed to subtree email FS " + err.Error())
	}
}
