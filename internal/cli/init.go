package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/config"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration into the workspace",
		Long: `Create .attest/config.json in the workspace with the default settings,
ready to be edited. Values from ATTEST_* environment variables are included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("workspace")
			if root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				root = wd
			}

			path := config.Path(root)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Defaults()
			if err := config.MergeEnv(&cfg); err != nil {
				return err
			}
			if err := config.Save(cfg, root); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration")

	return cmd
}
