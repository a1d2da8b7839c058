package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/task-telemetry/internal/model"
)

func TestFormatTaskParams(t *testing.T) {
	task := &model.Task{
		Family: "IngestLogs",
		Params: map[string]string{
			"date":   "2024-01-01",
			"bucket": "raw",
			"shards": "8",
		},
	}

	got := FormatTaskParams(task)
	assert.Equal(t, []string{"bucket:raw", "date:2024-01-01", "shards:8"}, got)

	// Repeated calls on the same task produce the same order.
	for i := 0; i < 20; i++ {
		assert.Equal(t, got, FormatTaskParams(task))
	}
}

func TestFormatTaskParamsEmpty(t *testing.T) {
	assert.Empty(t, FormatTaskParams(&model.Task{Family: "NoParams"}))
	assert.NotNil(t, FormatTaskParams(&model.Task{Family: "NoParams"}))
}

func TestFormatTaskParamsKeepsValueVerbatim(t *testing.T) {
	task := &model.Task{Params: map[string]string{"path": "s3://b/k:v", "empty": ""}}
	assert.Equal(t, []string{"empty:", "path:s3://b/k:v"}, FormatTaskParams(task))
}

func TestTaskTags(t *testing.T) {
	task := &model.Task{Family: "Report", Params: map[string]string{"day": "mon"}}
	assert.Equal(t, []string{"task_name:Report", "day:mon"}, TaskTags(task))
	assert.Equal(t, "task_state:DONE", StateTag(model.TaskStateDone))
}

func TestMerge(t *testing.T) {
	caller := []string{"a", "dup"}
	defaults := []string{"dup", "b"}

	merged := Merge(caller, defaults)
	assert.Equal(t, []string{"a", "dup", "dup", "b"}, merged)

	merged[0] = "changed"
	assert.Equal(t, "a", caller[0])
}

func TestDefaultProvider(t *testing.T) {
	tests := []struct {
		name        string
		eventTags   string
		environment string
		want        []string
	}{
		{
			name:        "Tags And Environment",
			eventTags:   "a,b,c",
			environment: "prod",
			want:        []string{"a", "b", "c", "env=prod"},
		},
		{
			name: "Nothing Configured",
			want: []string{},
		},
		{
			name:      "Empty String",
			eventTags: "",
			want:      []string{},
		},
		{
			name:      "Whitespace Kept",
			eventTags: "team:data, tier:1",
			want:      []string{"team:data", " tier:1"},
		},
		{
			name:        "Environment Only",
			environment: "staging",
			want:        []string{"env=staging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDefaultProvider(tt.eventTags, tt.environment)
			assert.Equal(t, tt.want, p.Tags())
		})
	}
}

func TestDefaultProviderReturnsCopy(t *testing.T) {
	p := NewDefaultProvider("a,b", "")
	got := p.Tags()
	got[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, p.Tags())
}
