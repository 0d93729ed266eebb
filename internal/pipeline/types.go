// Package pipeline implements the execution pipeline: it iterates
// outdated project entries, executes each one serially or
// across a bounded worker pool, captures artifacts and tracebacks, and
// feeds successful runs back into the cache engine.
package pipeline

import (
	"time"

	"github.com/notecache/notecache/internal/executor"
)

// SandboxMode selects where a notebook is executed.
type SandboxMode string

const (
	SandboxInPlace   SandboxMode = "in_place"
	SandboxTempDir   SandboxMode = "temp_dir"
)

// SchedulingMode selects how outdated entries are executed.
type SchedulingMode string

const (
	SchedulingSerial   SchedulingMode = "serial"
	SchedulingParallel SchedulingMode = "parallel"
)

// Options configures one execution pass.
type Options struct {
	// URIs and IDs filter the outdated set; empty means all.
	URIs []string
	IDs  []int64

	PerCellTimeout time.Duration
	AllowErrors    bool
	Scheduling     SchedulingMode
	Sandbox        SandboxMode

	// Workers bounds parallel scheduling's concurrency; zero means
	// runtime.NumCPU(), the number of hardware threads.
	Workers int

	Executor executor.Executor
}

// Result is the in-memory outcome of one execution pass.
//
// RunID correlates every log line emitted during one Run() call; it has no
// meaning to the cache engine or index and is never persisted.
type Result struct {
	RunID string

	Succeeded []string
	Excepted  []string
	Errored   []string
}

func (r *Result) addSucceeded(uri string) { r.Succeeded = append(r.Succeeded, uri) }
func (r *Result) addExcepted(uri string)  { r.Excepted = append(r.Excepted, uri) }
func (r *Result) addErrored(uri string)   { r.Errored = append(r.Errored, uri) }
