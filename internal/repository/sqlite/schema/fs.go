package schema

import "embed"

// FS holds the table definitions applied at startup. Every statement must be
// safe to run against a database that already has the schema.
//
//go:embed *.sql
var FS embed.FS
