package migrations

import (
	_ "embed"
)

//go:embed 001_initial_schema.sql
var initialSchema string

// InitialSchema returns the dispatch store schema
func InitialSchema() string {
	return initialSchema
}
