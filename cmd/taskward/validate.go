package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"taskward/internal/schedule"
	"taskward/internal/task"
)

func newValidateCommand(cfgPath *string, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and task definitions without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.EnvFile) != "" {
				if _, err := godotenv.Read(cfg.EnvFile); err != nil {
					return fmt.Errorf("env file: %w", err)
				}
			}

			tasks, err := task.NewFileProvider(cfg.TasksFile).Tasks(cmd.Context())
			if err != nil {
				return err
			}

			bad := 0
			for _, t := range tasks {
				if err := schedule.Check(t); err != nil {
					bad++
					fmt.Printf("%s/%s: %v\n", t.User, t.Name, err)
				}
			}
			if bad > 0 {
				fmt.Printf("%d of %d tasks invalid\n", bad, len(tasks))
				*code = 1
				return nil
			}
			fmt.Printf("%d tasks ok\n", len(tasks))
			return nil
		},
	}
}
