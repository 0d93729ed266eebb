// Package executor defines the execute-in-place interface the execution
// pipeline drives. The kernel-level code executor that actually runs a
// notebook is an external collaborator, consumed through
// this interface) plus one concrete reference implementation that shells
// out to an external command, grounded on evalgo-org-eve's CommandExecutor.
package executor

import (
	"context"
	"time"

	"github.com/notecache/notecache/internal/notebook"
)

// Outcome classifies how an execution attempt ended.
type Outcome string

const (
	SucceededWithoutCellError Outcome = "succeeded_without_cell_error"
	SucceededWithCellError    Outcome = "succeeded_with_cell_error"
	ExecutorRaised            Outcome = "executor_raised"
)

// Result is what Executor.ExecuteInPlace returns.
type Result struct {
	Outcome   Outcome
	Notebook  *notebook.Doc
	Traceback string
	Duration  time.Duration
}

// Options configures one execution attempt.
type Options struct {
	// PerCellTimeout bounds each cell's execution; zero means no timeout.
	PerCellTimeout time.Duration
	// AllowErrors continues past a raised cell exception instead of
	// aborting the whole run.
	AllowErrors bool
	// WorkingDir is the sandbox or in-place directory the executor runs in.
	WorkingDir string
}

// Executor runs a notebook's code cells in place and returns the mutated
// notebook, invoked with the given timeout and allow-errors setting.
type Executor interface {
	ExecuteInPlace(ctx context.Context, doc *notebook.Doc, opts Options) (Result, error)
}
