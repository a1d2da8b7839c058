package tags

import (
	"fmt"
	"sort"

	"github.com/t77yq/task-telemetry/internal/model"
)

// FormatTaskParams returns one "key:value" tag per task parameter, ordered by key
func FormatTaskParams(task *model.Task) []string {
	keys := make([]string, 0, len(task.Params))
	for key := range task.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tags := make([]string, 0, len(keys))
	for _, key := range keys {
		tags = append(tags, fmt.Sprintf("%s:%s", key, task.Params[key]))
	}
	return tags
}

// TaskTags returns the task name tag followed by the parameter tags
func TaskTags(task *model.Task) []string {
	return append([]string{"task_name:" + task.Family}, FormatTaskParams(task)...)
}

// StateTag returns the trailing state tag attached to lifecycle events
func StateTag(state model.TaskState) string {
	return "task_state:" + string(state)
}

// Merge returns caller tags followed by default tags in a new slice.
// Duplicates are kept.
func Merge(caller, defaults []string) []string {
	merged := make([]string, 0, len(caller)+len(defaults))
	merged = append(merged, caller...)
	return append(merged, defaults...)
}
