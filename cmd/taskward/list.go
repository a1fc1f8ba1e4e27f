package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskward/internal/lockfile"
	"taskward/internal/proc"
	"taskward/internal/schedule"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

func newListCommand(cfgPath *string) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tasks with their next and last runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			tasks, err := task.NewFileProvider(cfg.TasksFile).Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if user != "" {
				tasks = schedule.Filter(tasks, user, "")
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks found.")
				return nil
			}
			tasks = schedule.SortByTimeOfDay(tasks)

			locks := lockfile.NewManager(cfg.StateDir(), proc.System(), logx.Nop())
			now := time.Now()
			for _, t := range tasks {
				sched := t.Schedule
				if t.Time != "" {
					sched += " " + t.Time
				}

				next := "-"
				if at, err := schedule.NextRun(t, now); err != nil {
					next = "invalid"
				} else if !at.IsZero() {
					next = at.Format("2006-01-02 15:04")
				}

				id := lockfile.JobID(t.User, t.Identifier())
				last := "-"
				if rec, ok := locks.LastRun(id); ok {
					last = rec.Timestamp.Local().Format("2006-01-02 15:04")
				}

				fmt.Printf("%s/%s [%s] id=%s next=%s last=%s\n", t.User, t.Name, sched, id, next, last)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "only this user's tasks")
	return cmd
}
