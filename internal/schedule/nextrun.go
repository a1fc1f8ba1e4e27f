package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"taskward/internal/task"
)

// NextRun computes the next wall-clock instant a task's schedule fires after
// now. Once-tasks never fire on their own; for those the zero time is
// returned with a nil error.
func NextRun(t task.Task, now time.Time) (time.Time, error) {
	spec, err := cronSpec(t)
	if err != nil {
		return time.Time{}, err
	}
	if spec == "" {
		return time.Time{}, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return sched.Next(now), nil
}

// cronSpec translates a schedule kind into a standard cron expression.
func cronSpec(t task.Task) (string, error) {
	switch t.Schedule {
	case task.ScheduleHourly:
		return "0 * * * *", nil
	case task.ScheduleDaily:
		h, m, err := parseHHMM(t.Time)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case task.ScheduleOnce:
		return "", nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedKind, t.Schedule)
	}
}
