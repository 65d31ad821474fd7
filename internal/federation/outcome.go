package federation

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Stage is a step of a synchronization run.
type Stage string

// Stages in execution order.
const (
	StageInit          Stage = "INIT"
	StageCreateShadows Stage = "CREATE_SHADOWS"
	StageLoad          Stage = "LOAD"
	StageDiff          Stage = "DIFF"
	StageSwitch        Stage = "SWITCH"
)

// StageError is a failure of one source or target during a stage.
type StageError struct {
	Stage Stage
	Name  string
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageTiming is the duration of one stage.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Counts tallies sources or targets by result.
type Counts struct {
	Succeeded int
	Failed    int
}

// Outcome reports what a run did.
type Outcome struct {
	RunID    string
	Job      string
	Started  time.Time
	Finished time.Time
	Stages   []StageTiming

	Sources Counts
	Targets Counts

	RowsLoaded  int
	RowsSkipped int
	RowsFailed  int
	Changes     int

	errs *multierror.Error
}

// Err returns the combined stage errors, or nil.
func (o *Outcome) Err() error {
	return o.errs.ErrorOrNil()
}

// Errors returns the individual stage errors.
func (o *Outcome) Errors() []error {
	if o.errs == nil {
		return nil
	}
	return append([]error(nil), o.errs.Errors...)
}

// Duration returns the time spent in stage.
func (o *Outcome) Duration(stage Stage) time.Duration {
	for _, t := range o.Stages {
		if t.Stage == stage {
			return t.Duration
		}
	}
	return 0
}

// Ran reports whether stage was executed.
func (o *Outcome) Ran(stage Stage) bool {
	for _, t := range o.Stages {
		if t.Stage == stage {
			return true
		}
	}
	return false
}

// String returns a one-line summary.
func (o *Outcome) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "job=%s run=%s sources=%d/%d targets=%d/%d rows=%d skipped=%d failed=%d changes=%d errors=%d",
		o.Job, o.RunID,
		o.Sources.Succeeded, o.Sources.Succeeded+o.Sources.Failed,
		o.Targets.Succeeded, o.Targets.Succeeded+o.Targets.Failed,
		o.RowsLoaded, o.RowsSkipped, o.RowsFailed, o.Changes, len(o.Errors()))
	return sb.String()
}

func (o *Outcome) record(stage Stage, name string, err error) {
	o.errs = multierror.Append(o.errs, &StageError{Stage: stage, Name: name, Err: err})
}
