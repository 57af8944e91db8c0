package topichub

import "embed"

// Migrations holds the SQL schema migrations, embedded so callers can apply
// them without shipping files alongside the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS
