package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListActorsFilterValues(t *testing.T) {
	assert.Equal(t, "limit=50&offset=0", ListActorsFilter{}.Values().Encode())
	assert.Equal(t,
		"category=AI&limit=10&offset=20&search=maps",
		ListActorsFilter{Limit: 10, Offset: 20, Category: "AI", Search: "maps"}.Values().Encode())
	assert.Equal(t, "limit=50&offset=0", ListActorsFilter{Offset: -4}.Values().Encode())
}

func TestListRunsFilterValues(t *testing.T) {
	assert.Equal(t, "limit=50&offset=0&status=SUCCEEDED", ListRunsFilter{Status: "SUCCEEDED"}.Values().Encode())
}

func TestResultsQuery(t *testing.T) {
	q := ResultsQuery{}.Normalized()
	assert.Equal(t, ResultsQuery{Format: "json", Limit: 1000}, q)

	assert.Equal(t, "format=csv&limit=5&offset=10", ResultsQuery{Format: "csv", Limit: 5, Offset: 10}.Values().Encode())
}

func TestRunStatus(t *testing.T) {
	for _, s := range []RunStatus{RunStatusReady, RunStatusRunning} {
		assert.True(t, s.IsActive(), s)
	}
	for _, s := range []RunStatus{RunStatusSucceeded, RunStatusFailed, RunStatusAborting, RunStatusAborted, RunStatusTimedOut, "SOMETHING-NEW"} {
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestDatasetPageIsRaw(t *testing.T) {
	assert.False(t, (&DatasetPage{}).IsRaw())
	assert.False(t, (&DatasetPage{Format: "json"}).IsRaw())
	assert.True(t, (&DatasetPage{Format: "csv"}).IsRaw())
}
