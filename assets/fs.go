package assets

import "embed"

// FS holds the SQL migrations, the email templates and the common passwords list.
//go:embed migrations/*/*.sql templates/email/* common-passwords.txt.gz
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "templates/email"
	CommonPasswordsFile = "common-passwords.txt.gz"
)
