package workflowio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"workflowctl/internal/errs"
)

func TestParseAppliesDefaults(t *testing.T) {
	wf, err := Parse([]byte(`{
		"name": "demo",
		"tasks": [{"id": "a", "fn": "echo", "args": [1]}]
	}`))
	require.NoError(t, err)
	task := wf.Tasks["a"]
	require.Equal(t, 0, task.Retries)
	require.Nil(t, task.Timeout)
	require.True(t, task.Cacheable)
	require.Empty(t, task.Tags)
	require.Empty(t, task.Deps)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{
		"name": "demo",
		"tasks": [{"id": "a", "fn": "echo", "bogus": true}]
	}`))
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.KindSchemaError, e.Kind)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"name": "demo", "tasks": [{"id":"a","fn":"echo"}]} {}`))
	require.Error(t, err)
}

func TestParseRejectsMissingFn(t *testing.T) {
	_, err := Parse([]byte(`{"name":"demo","tasks":[{"id":"a"}]}`))
	require.Error(t, err)
}

func TestParseRejectsNegativeRetries(t *testing.T) {
	_, err := Parse([]byte(`{"name":"demo","tasks":[{"id":"a","fn":"echo","retries":-1}]}`))
	require.Error(t, err)
}

func TestParseHonorsExplicitTimeoutAndTags(t *testing.T) {
	wf, err := Parse([]byte(`{
		"name": "demo",
		"tasks": [{"id": "a", "fn": "echo", "timeout": 2.5, "tags": ["io"], "cacheable": false}]
	}`))
	require.NoError(t, err)
	task := wf.Tasks["a"]
	require.NotNil(t, task.Timeout)
	require.Equal(t, 2500_000_000.0, float64(*task.Timeout))
	require.Equal(t, []string{"io"}, task.Tags)
	require.False(t, task.Cacheable)
}
