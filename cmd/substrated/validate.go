package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/substrate/internal/config"
)

// buildValidateConfigCmd offers an offline check of a config file against
// the §6 recognized-keys/defaults/precedence rules, and an optional dump
// of the generated JSON Schema for editor tooling. Grounded on a
// cmd/nexus validate-config command, same load-and-report shape.
func buildValidateConfigCmd() *cobra.Command {
	var configPath string
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "validate a substrate config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				schema, err := config.JSONSchema()
				if err != nil {
					return fmt.Errorf("generating schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return nil
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			summary, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %q is valid:\n%s\n", configPath, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "substrate.yaml", "path to the substrate config file")
	cmd.Flags().BoolVar(&printSchema, "schema", false, "print the config JSON Schema instead of validating")
	return cmd
}
