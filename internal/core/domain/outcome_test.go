package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	ok := MaskOutcome{RegionID: "R1", Status: OutcomeSuccess}
	cached := MaskOutcome{RegionID: "R2", Status: OutcomeSkippedCached}
	failed := FailedOutcome("R3", "population", "/out/R3.tif", ErrEmptyIntersection)

	tests := []struct {
		name   string
		items  []MaskOutcome
		err    error
		status OutcomeStatus
	}{
		{"no items", nil, nil, OutcomeSuccess},
		{"all success", []MaskOutcome{ok, ok}, nil, OutcomeSuccess},
		{"all cached", []MaskOutcome{cached, cached}, nil, OutcomeSkippedCached},
		{"mixed cached", []MaskOutcome{ok, cached}, nil, OutcomeSuccess},
		{"one failure", []MaskOutcome{ok, failed, cached}, nil, OutcomeFailed},
		{"process error", []MaskOutcome{ok}, errors.New("boom"), OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Summarize("AAA", tt.items, tt.err)
			assert.Equal(t, tt.status, u.Status)
			for _, it := range u.Items {
				assert.Equal(t, "AAA", it.UnitID)
			}
		})
	}

	u := Summarize("AAA", []MaskOutcome{ok, failed}, nil)
	assert.Equal(t, "1 of 2 items failed", u.Reason)
	assert.Len(t, u.Failures(), 1)
	assert.ErrorIs(t, u.Failures()[0].Err, ErrEmptyIntersection)
}

func TestRunOptions_Validate(t *testing.T) {
	assert.NoError(t, RunOptions{ConcurrencyMode: ConcurrencySequential}.Validate())
	assert.NoError(t, RunOptions{ConcurrencyMode: ConcurrencyBoundedPool, WorkerCount: 2}.Validate())
	assert.ErrorIs(t, RunOptions{ConcurrencyMode: ConcurrencyBoundedPool}.Validate(), ErrInvalidWorkerCount)
	assert.ErrorIs(t, RunOptions{ConcurrencyMode: "threads"}.Validate(), ErrInvalidConcurrencyMode)
	assert.ErrorIs(t, RunOptions{}.Validate(), ErrInvalidConcurrencyMode)
}

func TestRunReport(t *testing.T) {
	r := &RunReport{
		Units: []UnitOutcome{
			{UnitID: "AAA", Status: OutcomeSuccess},
			{UnitID: "BBB", Status: OutcomeSkippedCached},
		},
		Roots: []*RegionNode{NewRootRegion("AAA"), nil},
	}
	assert.False(t, r.Failed())

	n, ok := r.Root("AAA")
	assert.True(t, ok)
	assert.Equal(t, "AAA", n.ID)
	_, ok = r.Root("BBB")
	assert.False(t, ok)

	r.Units = append(r.Units, UnitOutcome{UnitID: "CCC", Status: OutcomeFailed})
	assert.True(t, r.Failed())
	assert.Equal(t, map[OutcomeStatus]int{OutcomeSuccess: 1, OutcomeSkippedCached: 1, OutcomeFailed: 1}, r.Counts())
}
