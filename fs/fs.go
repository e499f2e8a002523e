package appfs

import (
	"embed"
	"io/fs"
)

const MigrationsDir = "migrations"

//go:embed migrations/*.sql templates
var FS embed.FS

// EmailTemplates returns the directory holding e-mail templates.
func EmailTemplates() fs.FS {
	sub, err := fs.Sub(FS, "templates/email")
	if err != nil {
		panic(err) // embedded path, cannot fail
	}
	return sub
}
