/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"

	"github.com/mautops/labtask-gin/internal/container"
	"github.com/mautops/labtask-gin/internal/seed"
	"github.com/spf13/cobra"
)

// seedCmd 从 YAML 文件导入任务类型、机器和用户
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import task types, machines and users from a YAML file",
	Long: `Import task types, machines and users from a YAML file.
Records reference task types by name. Records whose name already
exists are skipped, so the same file can be applied repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		file, _ := cmd.Flags().GetString("file")
		catalog, err := seed.Load(file)
		if err != nil {
			return err
		}

		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		seeder := seed.NewSeeder(ctr.TaskTypes(), ctr.Machines(), ctr.Users(), ctr.Logger())
		result, err := seeder.Apply(cmd.Context(), catalog)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "seed applied: %d created, %d skipped\n", result.Created, result.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("file", "f", "seed.yaml", "Seed file path")
}
