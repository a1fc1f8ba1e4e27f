package task

import (
	"context"
	"fmt"
	"os"
	"strings"

	"taskward/internal/config"
)

// Provider supplies the task universe for one pass.
type Provider interface {
	Tasks(ctx context.Context) ([]Task, error)
}

// FileProvider reads task definitions from a JSON or YAML file.
//
// The file holds a single `tasks` list:
//
//	tasks:
//	  - name: backup
//	    user: ops
//	    schedule: daily
//	    time: "02:00"
//	    command:
//	      path: /usr/local/bin/backup.sh
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider { return &FileProvider{path: path} }

func (p *FileProvider) Tasks(ctx context.Context) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var doc taskFile
	if err := config.DecodeStrict(p.path, b, &doc); err != nil {
		return nil, fmt.Errorf("parse tasks file %s: %w", p.path, err)
	}
	if err := checkTasks(doc.Tasks); err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

type taskFile struct {
	Tasks []Task `json:"tasks"`
}

// checkTasks rejects structurally unusable definitions. Schedule semantics
// (kind, time format) are deliberately left to the evaluator so a single bad
// schedule fails that task, not the whole pass.
func checkTasks(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("task #%d: name is required", i+1)
		}
		if strings.TrimSpace(t.User) == "" {
			return fmt.Errorf("task %q: user is required", t.Name)
		}
		if strings.TrimSpace(t.Command.Path) == "" {
			return fmt.Errorf("task %q: command.path is required", t.Name)
		}
		key := strings.ToLower(strings.TrimSpace(t.User)) + "\x00" + strings.ToLower(t.Identifier())
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("task %q: same job identity as task %q", t.Name, tasks[prev].Name)
		}
		seen[key] = i
	}
	return nil
}
