// Package migrations embeds the versioned schema files for each supported driver.
package migrations

import "embed"

// FS holds sqlite/NNN_name.up.sql and postgres/NNN_name.up.sql.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
