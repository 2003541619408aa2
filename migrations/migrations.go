// Package migrations embeds the versioned SQL schema.
package migrations

import "embed"

// FS holds NNNNNN_name.up.sql / NNNNNN_name.down.sql pairs.
//
//go:embed *.sql
var FS embed.FS
