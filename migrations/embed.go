// Package migrations embeds the goose SQL migrations so the migrate command
// can run without the source tree on disk.
package migrations

import "embed"

//go:embed *.sql
var EmbeddedFS embed.FS
