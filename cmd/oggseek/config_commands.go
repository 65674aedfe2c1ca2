package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.config.Encode(cmd.OutOrStdout())
		},
	})

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !overwrite {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config file %s already exists (use --overwrite)", path)
				}
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create config: %w", err)
			}
			cfg := config.Default()
			if err := cfg.Encode(f); err != nil {
				f.Close()
				return fmt.Errorf("write config: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
