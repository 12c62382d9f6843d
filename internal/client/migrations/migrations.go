// Package migrations embeds the goose migrations for the local biru database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
