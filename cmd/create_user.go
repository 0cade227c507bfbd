/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"

	"github.com/mautops/labtask-gin/internal/container"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/spf13/cobra"
)

// createUserCmd 创建初始用户,通常用于初始化第一个管理员
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user account",
	Long: `Create a user account directly in the database.
Use it to bootstrap the first admin, who can then manage
the rest of the users through the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")
		skills, _ := cmd.Flags().GetStringSlice("task-types")

		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		user, err := ctr.Users().Create(cmd.Context(), &service.CreateUserRequest{
			UserName:      name,
			Password:      password,
			UserRole:      role,
			UserTaskTypes: skills,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Name, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createUserCmd)

	createUserCmd.Flags().String("name", "", "User name")
	createUserCmd.Flags().String("password", "", "Login password")
	createUserCmd.Flags().String("role", "admin", "User role: admin, leader or worker")
	createUserCmd.Flags().StringSlice("task-types", nil, "Task type IDs the worker can perform")
	_ = createUserCmd.MarkFlagRequired("name")
	_ = createUserCmd.MarkFlagRequired("password")
}
