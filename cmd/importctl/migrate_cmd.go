package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/persistence"
	"github.com/iota-uz/assetdesk/pkg/composables"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the default import tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connectDB(ctx)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			if err := persistence.Migrate(composables.WithPool(ctx, pool)); err != nil {
				return withCode(exitDBWrite, fmt.Errorf("migrate: %w", err))
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]string{"status": "migrated"})
		},
	}
}
