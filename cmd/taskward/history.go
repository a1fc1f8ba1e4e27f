package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskward/internal/history"
	logx "taskward/pkg/logx"
)

func newHistoryCommand(cfgPath *string) *cobra.Command {
	var (
		user  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent task runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			hc, enabled, err := mapHistoryConfig(cfg)
			if err != nil {
				return err
			}
			if !enabled {
				fmt.Println("History is disabled; set history.driver in the config.")
				return nil
			}
			st, err := history.Open(hc, logx.Nop())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.RecentRuns(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			for _, r := range runs {
				status := r.Status
				if r.Reason != "" {
					status += ": " + r.Reason
				}
				took := time.Duration(r.TookMS) * time.Millisecond
				fmt.Printf("%s %s/%s [%s] %s\n",
					r.At.Local().Format("2006-01-02 15:04:05"), r.User, r.Task, status, took)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "only this user's runs")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "newest runs to show")
	return cmd
}
