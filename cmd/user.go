/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// createUserCmd represents the create-user command
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a login user",
	Long: `Create a user that can log in to the API.
Use --admin to create an administrator, which is required to configure
stages, rules, workspaces, teams and memberships.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		admin, _ := cmd.Flags().GetBool("admin")

		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || password == "" {
			return errors.New("--email and --password are required")
		}

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer func() {
			if sqlDB, _ := db.DB(); sqlDB != nil {
				sqlDB.Close()
			}
		}()

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		u := &model.UserModel{
			Email:        email,
			Name:         strings.TrimSpace(name),
			PasswordHash: hash,
			IsAdmin:      admin,
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := repository.NewUserRepository(db).Create(cmd.Context(), u); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("user %s already exists", email)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"user_id": u.ID,
			"email":   u.Email,
			"admin":   u.IsAdmin,
		}).Info("user created")
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createUserCmd)
	createUserCmd.Flags().String("email", "", "Login email")
	createUserCmd.Flags().String("name", "", "Display name")
	createUserCmd.Flags().String("password", "", "Login password")
	createUserCmd.Flags().Bool("admin", false, "Grant administrator rights")
}
