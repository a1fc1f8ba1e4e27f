package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskward/internal/task"
)

// ErrUnsupportedKind reports a schedule kind the evaluator doesn't know.
var ErrUnsupportedKind = errors.New("unsupported schedule kind")

// IsDue decides whether a task should run at now.
//
//   - hourly: always due; the external timer's cadence is the real period.
//   - daily: due any time within the scheduled hour. The minute is
//     informational only and tolerates an imprecise trigger cadence.
//   - once: never due on its own; such tasks run only when forced.
//
// A malformed time or unknown kind is an error, not a quiet skip.
func IsDue(t task.Task, now time.Time) (bool, error) {
	switch t.Schedule {
	case task.ScheduleHourly:
		return true, nil
	case task.ScheduleDaily:
		h, _, err := parseHHMM(t.Time)
		if err != nil {
			return false, err
		}
		return now.Hour() == h, nil
	case task.ScheduleOnce:
		return false, nil
	default:
		return false, fmt.Errorf("%w %q", ErrUnsupportedKind, t.Schedule)
	}
}

// Check validates a task's schedule without consulting the clock.
func Check(t task.Task) error {
	switch t.Schedule {
	case task.ScheduleHourly, task.ScheduleOnce:
		return nil
	case task.ScheduleDaily:
		_, _, err := parseHHMM(t.Time)
		return err
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedKind, t.Schedule)
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
