package persistence

import (
	"context"
	_ "embed"

	"github.com/go-faster/errors"

	"github.com/iota-uz/assetdesk/pkg/composables"
)

//go:embed schema/importer-schema.sql
var schemaSQL string

// Migrate creates the default tables when they do not exist.
func Migrate(ctx context.Context) error {
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply importer schema")
	}
	return nil
}
