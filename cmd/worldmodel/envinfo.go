package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/driver"
)

func newEnvInfoCmd(root *rootOptions) *cobra.Command {
	var envName string
	cmd := &cobra.Command{
		Use:   "envinfo",
		Short: "Print observation and action dimensions of an environment",
		Long: `Build the driver for an environment and print its observation and action
dimensions and the action bound.

Examples:
  # Inspect the bundled physics backend
  worldmodel envinfo --env physics

  # Inspect a classic-control environment
  worldmodel envinfo --env Pendulum-v1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath, envName)
			if err != nil {
				return err
			}
			d, err := driver.New(cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Env.Name, d.EnvInfo())
			return nil
		},
	}
	cmd.Flags().StringVar(&envName, "env", "", "environment id (physics or a classic-control id)")
	return cmd
}
