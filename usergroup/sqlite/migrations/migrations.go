// Package migrations embeds the schema of the SQL user-group service.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
