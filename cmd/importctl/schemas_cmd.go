package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/assetdesk/modules/importer"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

func newSchemasCmd() *cobra.Command {
	var entity, schemaFile string

	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "Print import descriptors as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := importer.LoadRegistry(schemaFile)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if entity == "" {
				return writeJSONLine(cmd.OutOrStdout(), registry.Descriptors())
			}
			d, err := registry.Get(entity)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return writeJSONLine(cmd.OutOrStdout(), []*schema.Descriptor{d})
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Only print this entity")
	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "YAML file with synonym and required-field overrides")
	return cmd
}
