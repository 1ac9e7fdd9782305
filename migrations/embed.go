// Package migrations embeds the fraudguard schema so it can be run via
// shared/migration without shipping loose .sql files alongside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
