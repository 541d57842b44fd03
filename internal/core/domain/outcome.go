package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutcomeStatus string

const (
	OutcomeSuccess       OutcomeStatus = "success"
	OutcomeSkippedCached OutcomeStatus = "skipped-cached"
	OutcomeFailed        OutcomeStatus = "failed"
)

// MaskOutcome records what happened to one (asset, region) masking job.
type MaskOutcome struct {
	UnitID     string        `json:"unit_id" yaml:"unit_id"`
	RegionID   string        `json:"region_id" yaml:"region_id"`
	ParentID   string        `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	AssetName  string        `json:"asset_name,omitempty" yaml:"asset_name,omitempty"`
	OutputPath string        `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Status     OutcomeStatus `json:"status" yaml:"status"`
	Reason     string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Err        error         `json:"-" yaml:"-"`
}

// FailedOutcome builds a failed outcome carrying err.
func FailedOutcome(regionID, assetName, outputPath string, err error) MaskOutcome {
	return MaskOutcome{
		RegionID:   regionID,
		AssetName:  assetName,
		OutputPath: outputPath,
		Status:     OutcomeFailed,
		Reason:     err.Error(),
		Err:        err,
	}
}

// UnitOutcome is the report line of one top-level unit.
type UnitOutcome struct {
	UnitID   string        `json:"unit_id" yaml:"unit_id"`
	Status   OutcomeStatus `json:"status" yaml:"status"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Items    []MaskOutcome `json:"items,omitempty" yaml:"items,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Failures returns the failed items of the unit.
func (u UnitOutcome) Failures() []MaskOutcome {
	var out []MaskOutcome
	for _, it := range u.Items {
		if it.Status == OutcomeFailed {
			out = append(out, it)
		}
	}
	return out
}

// Summarize derives the unit status from its items and the process error.
func Summarize(unitID string, items []MaskOutcome, processErr error) UnitOutcome {
	for i := range items {
		items[i].UnitID = unitID
	}
	u := UnitOutcome{UnitID: unitID, Items: items}

	if processErr != nil {
		u.Status = OutcomeFailed
		u.Reason = processErr.Error()
		return u
	}

	failed, skipped := 0, 0
	for _, it := range items {
		switch it.Status {
		case OutcomeFailed:
			failed++
		case OutcomeSkippedCached:
			skipped++
		}
	}
	switch {
	case failed > 0:
		u.Status = OutcomeFailed
		u.Reason = fmt.Sprintf("%d of %d items failed", failed, len(items))
	case skipped > 0 && skipped == len(items):
		u.Status = OutcomeSkippedCached
	default:
		u.Status = OutcomeSuccess
	}
	return u
}

type ConcurrencyMode string

const (
	ConcurrencySequential  ConcurrencyMode = "sequential"
	ConcurrencyBoundedPool ConcurrencyMode = "bounded-pool"
)

type JobMode string

const (
	JobModeTree JobMode = "tree"
	JobModeFlat JobMode = "flat"
)

// RunOptions is the explicit configuration passed into a pipeline run.
type RunOptions struct {
	Overwrite           bool            `json:"overwrite" yaml:"overwrite"`
	ConcurrencyMode     ConcurrencyMode `json:"concurrency_mode" yaml:"concurrency_mode"`
	WorkerCount         int             `json:"worker_count" yaml:"worker_count"`
	TolerancePercentage *float64        `json:"tolerance_percentage,omitempty" yaml:"tolerance_percentage,omitempty"`
}

func (o RunOptions) Validate() error {
	switch o.ConcurrencyMode {
	case ConcurrencySequential:
	case ConcurrencyBoundedPool:
		if o.WorkerCount <= 0 {
			return ErrInvalidWorkerCount
		}
	default:
		return fmt.Errorf("%q: %w", o.ConcurrencyMode, ErrInvalidConcurrencyMode)
	}
	return nil
}

// RunReport is the result of one pipeline run.
type RunReport struct {
	ID         uuid.UUID     `json:"id" yaml:"id"`
	Mode       JobMode       `json:"mode" yaml:"mode"`
	Options    RunOptions    `json:"options" yaml:"options"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Units      []UnitOutcome `json:"units" yaml:"units"`
	Roots      []*RegionNode `json:"-" yaml:"-"`
}

// Failed reports whether any unit failed.
func (r *RunReport) Failed() bool {
	for _, u := range r.Units {
		if u.Status == OutcomeFailed {
			return true
		}
	}
	return false
}

// Counts returns the number of units per status.
func (r *RunReport) Counts() map[OutcomeStatus]int {
	counts := map[OutcomeStatus]int{}
	for _, u := range r.Units {
		counts[u.Status]++
	}
	return counts
}

func (r *RunReport) Root(unitID string) (*RegionNode, bool) {
	for _, n := range r.Roots {
		if n != nil && n.ID == unitID {
			return n, true
		}
	}
	return nil, false
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run tracks an asynchronous pipeline run submitted to the service.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Status      RunStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Error       string     `json:"error,omitempty"`
	Report      *RunReport `json:"report,omitempty"`
}
