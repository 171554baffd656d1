// Package assets embeds the files shipped with the binaries.
package assets

import "embed"

// FS holds the SQL migrations and the common password list.
//
//go:embed common-passwords.txt.gz migrations/*.sql
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	CommonPasswordsFile = "common-passwords.txt.gz"
)
