package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/KilimcininKorOglu/vdir/internal/federation"
)

var (
	okLabel      = color.New(color.FgGreen, color.Bold).SprintFunc()
	partialLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	failedLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	faint        = color.New(color.Faint).SprintFunc()
)

// printOutcome prints the summary of a synchronization run.
func printOutcome(w io.Writer, job string, outcome *federation.Outcome, err error) {
	if outcome == nil {
		fmt.Fprintf(w, "%s job=%s: %v\n", failedLabel("FAILED"), job, err)
		return
	}

	status := okLabel("OK")
	switch {
	case err != nil:
		status = failedLabel("FAILED")
	case outcome.Err() != nil:
		status = partialLabel("PARTIAL")
	}
	fmt.Fprintf(w, "%s %s\n", status, outcome)
	for _, st := range outcome.Stages {
		fmt.Fprintf(w, "  %-15s %s\n", st.Stage, faint(st.Duration.Round(time.Millisecond)))
	}
	for _, e := range outcome.Errors() {
		fmt.Fprintf(w, "  %s %v\n", failedLabel("error:"), e)
	}
	if err != nil {
		fmt.Fprintf(w, "  %s %v\n", failedLabel("error:"), err)
	}
}

// succeeded reports whether a run completed without any error.
func succeeded(outcome *federation.Outcome, err error) bool {
	return err == nil && outcome != nil && outcome.Err() == nil
}
