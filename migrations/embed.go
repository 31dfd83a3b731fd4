// Package migrations embeds the PostgreSQL schema for the snapshot backend.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
