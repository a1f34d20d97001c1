package store

import (
	"context"

	_ "embed"
)

//go:embed schema.sql
var Schema string

// EnsureSchema applies the schema idempotently. Development and test
// convenience; production deployments run migrations out of band.
func EnsureSchema(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
