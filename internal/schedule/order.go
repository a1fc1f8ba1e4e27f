package schedule

import (
	"sort"
	"strings"

	"taskward/internal/task"
)

// Filter returns user's tasks; a non-empty name narrows the match to that
// single task. Both comparisons are case-insensitive.
func Filter(tasks []task.Task, user, name string) []task.Task {
	user = strings.TrimSpace(user)
	name = strings.TrimSpace(name)
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !strings.EqualFold(strings.TrimSpace(t.User), user) {
			continue
		}
		if name != "" && !strings.EqualFold(strings.TrimSpace(t.Name), name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SortByTimeOfDay orders tasks ascending by their HH:MM time of day without
// mutating the input. Tasks with a missing or unparsable time sort first,
// keeping their relative input order.
func SortByTimeOfDay(tasks []task.Task) []task.Task {
	out := make([]task.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return timeKey(out[i]) < timeKey(out[j])
	})
	return out
}

func timeKey(t task.Task) int {
	h, m, err := parseHHMM(t.Time)
	if err != nil {
		return 0
	}
	return h*60 + m
}
