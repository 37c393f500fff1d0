// Package migrations embeds the versioned SQLite schema. Files are applied
// in version order by goose when the store opens.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
