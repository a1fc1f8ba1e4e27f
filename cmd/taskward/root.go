package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"taskward/internal/config"
	"taskward/internal/executor"
	"taskward/internal/history"
	"taskward/internal/lockfile"
	"taskward/internal/orchestrator"
	"taskward/internal/proc"
	"taskward/internal/supervise"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

func newRootCommand(code *int) *cobra.Command {
	var (
		cfgPath  string
		user     string
		taskName string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "taskward",
		Short: "Single-host task scheduler",
		Long: "Taskward runs one scheduling pass: it reads the task file, decides\n" +
			"which of the user's tasks are due right now and supervises each run.\n" +
			"An external timer (cron, systemd) is expected to invoke it periodically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runPass(cmd.Context(), cfgPath, orchestrator.Options{
				User:    user,
				Task:    taskName,
				Verbose: detailed,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default <data dir>/config.yaml)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "run this user's tasks (required)")
	cmd.Flags().StringVarP(&taskName, "task", "t", "", "force-run exactly this task, bypassing its schedule")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "echo per-task detail to the console")
	_ = cmd.MarkFlagRequired("user")

	cmd.AddCommand(newListCommand(&cfgPath))
	cmd.AddCommand(newHistoryCommand(&cfgPath))
	cmd.AddCommand(newValidateCommand(&cfgPath, code))
	return cmd
}

// runPass wires one pass together and returns its exit code. Setup problems
// are fatal (code 3); per-task outcomes are the orchestrator's business.
func runPass(ctx context.Context, cfgPath string, opts orchestrator.Options) int {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		return orchestrator.ExitFatal
	}

	logSvc, log := newLogging(cfg, opts.Verbose)
	log = log.With(logx.String("comp", "taskward"))

	if strings.TrimSpace(cfg.EnvFile) != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			log.Error("env file unreadable", logx.String("path", cfg.EnvFile), logx.Err(err))
			fmt.Println("fatal:", err)
			return orchestrator.ExitFatal
		}
	}

	defaultTimeout, err := cfg.TaskTimeout()
	if err != nil {
		fmt.Println("fatal:", err)
		return orchestrator.ExitFatal
	}

	var store history.Store
	if hc, enabled, err := mapHistoryConfig(cfg); err != nil {
		fmt.Println("fatal:", err)
		return orchestrator.ExitFatal
	} else if enabled {
		st, err := history.Open(hc, log.With(logx.String("comp", "history")))
		if err != nil {
			fmt.Println("fatal:", err)
			return orchestrator.ExitFatal
		}
		store = st
		log.Info("history enabled", logx.String("driver", hc.Driver))
	}
	if store != nil {
		defer store.Close()
	}

	// Tasks without a working directory of their own land here.
	fallbackDir := filepath.Join(cfg.DataDir, "tasks")
	if err := os.MkdirAll(fallbackDir, 0o755); err != nil {
		log.Warn("cannot create fallback work dir", logx.String("dir", fallbackDir), logx.Err(err))
	}

	locks := lockfile.NewManager(cfg.StateDir(), proc.System(), log.With(logx.String("comp", "locks")))
	exec := executor.New(supervise.New(locks), executor.Config{
		DefaultTimeout:  defaultTimeout,
		DefaultWorkDir:  cfg.WorkDir,
		FallbackWorkDir: fallbackDir,
		BaseEnv:         os.Environ(),
	})
	provider := task.NewFileProvider(cfg.TasksFile)

	orch := orchestrator.New(provider, exec, logSvc, store, log.With(logx.String("comp", "orchestrator")))
	return orch.Run(ctx, opts)
}

// loadConfig reads the config file. A missing file is only acceptable on the
// default path; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(config.DefaultPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogging(cfg *config.Config, verbose bool) (*logx.Service, logx.Logger) {
	return logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || verbose,
		Dir:     cfg.Logging.Dir,
		Journal: logx.JournalConfig{
			Enabled:    cfg.Logging.Journal.Enabled,
			MinLevel:   cfg.Logging.Journal.MinLevel,
			RatePerSec: cfg.Logging.Journal.RatePerSec,
		},
	})
}

func mapHistoryConfig(cfg *config.Config) (history.Config, bool, error) {
	if cfg == nil || cfg.History == nil {
		return history.Config{}, false, nil
	}
	hc := cfg.History
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	if driver == "" || driver == "none" {
		return history.Config{}, false, nil
	}
	path := strings.TrimSpace(hc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = filepath.Join(cfg.DataDir, "history.jsonl")
		}
		return history.Config{Driver: driver, Path: path, Keep: hc.Keep}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = filepath.Join(cfg.DataDir, "history.db")
		}
		busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, time.Second)
		if err != nil {
			return history.Config{}, false, err
		}
		return history.Config{Driver: driver, Path: path, Keep: hc.Keep, BusyTimeout: busy}, true, nil
	default:
		return history.Config{}, false, fmt.Errorf("unknown history.driver: %s", hc.Driver)
	}
}
