package migrations

import "embed"

// Files exposes embedded SQL migration files ordered lexicographically.
// Top-level files target Postgres; the sqlite/ directory holds the local
// development variants.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
