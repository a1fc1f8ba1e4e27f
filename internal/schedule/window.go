package schedule

import (
	"time"

	"taskward/internal/task"
)

const (
	windowHourLayout   = "2006-01-02_15"
	windowMinuteLayout = "2006-01-02_15-04"
)

// Window returns the run-window label for a schedule kind at now. A non-empty
// explicit label is returned unchanged, which lets a caller fix one value and
// thread it through both the idempotency check and the lock key.
//
// Hourly and daily schedules share an hour-sized bucket; anything else
// (forced runs included) gets a minute-sized one.
func Window(kind string, now time.Time, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch kind {
	case task.ScheduleHourly, task.ScheduleDaily:
		return now.Format(windowHourLayout)
	default:
		return now.Format(windowMinuteLayout)
	}
}
