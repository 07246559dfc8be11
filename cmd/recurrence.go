/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mautops/crm-gin/internal/container"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/spf13/cobra"
)

// recurrenceCmd represents the run-recurrences command
var recurrenceCmd = &cobra.Command{
	Use:   "run-recurrences",
	Short: "Materialize due recurring tasks once",
	Long: `Run a single pass over the active recurrence rules whose next run is due.
Each due rule creates a copy of its source task at the end of the source stage
and advances its schedule. Intended to be invoked from cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		actor, _ := cmd.Flags().GetString("actor")
		result, err := ctr.Recurrences().RunDueRecurrences(cmd.Context(), actor)
		if err != nil {
			return fmt.Errorf("failed to run recurrences: %w", err)
		}

		out, _ := json.Marshal(result)
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recurrenceCmd)
	recurrenceCmd.Flags().String("actor", service.CronActor, "Actor recorded as creator of materialized tasks")
}
