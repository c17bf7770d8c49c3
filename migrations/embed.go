// Package migrations embeds the chat schema and applies it with golang-migrate.
package migrations

import "embed"

// Files holds every NNN_name.up.sql / NNN_name.down.sql in this directory.
//
//go:embed *.sql
var Files embed.FS
