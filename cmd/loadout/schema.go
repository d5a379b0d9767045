package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the loadout/v0 JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
