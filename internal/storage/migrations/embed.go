// ABOUTME: Embeds goose SQL migrations for the wearsync schema.
// ABOUTME: Applied at startup by storage.Open.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
