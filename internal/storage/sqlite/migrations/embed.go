// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

//go:embed authority/*.sql
var AuthorityFS embed.FS

//go:embed device/*.sql
var DeviceFS embed.FS
