package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/notecache/notecache/internal/notebook"
)

// CommandExecutor runs each code cell's source as a separate invocation of
// an external interpreter command, collecting stdout as the cell's output.
// It is a reference implementation: real deployments are expected to
// supply their own Executor backed by an actual notebook kernel.
type CommandExecutor struct {
	// Command is the interpreter binary, e.g. "python3".
	Command string
	// Args are extra arguments passed before the script is appended, e.g. "-c".
	Args []string
}

// NewCommandExecutor returns a CommandExecutor invoking command with args.
func NewCommandExecutor(command string, args ...string) *CommandExecutor {
	return &CommandExecutor{Command: command, Args: args}
}

// ExecuteInPlace runs every code cell of doc in document order, stopping at
// the first cell error unless opts.AllowErrors is set.
func (e *CommandExecutor) ExecuteInPlace(ctx context.Context, doc *notebook.Doc, opts Options) (Result, error) {
	start := time.Now()

	mutated, err := doc.Clone()
	if err != nil {
		return Result{}, fmt.Errorf("executor: clone notebook: %w", err)
	}

	count := 1

	for i := range mutated.Cells {
		cell := &mutated.Cells[i]

		if cell.Kind != notebook.KindCode {
			continue
		}

		runCtx := ctx

		var cancel context.CancelFunc

		if opts.PerCellTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, opts.PerCellTimeout)
		}

		output, runErr := e.runCell(runCtx, cell.Source, opts.WorkingDir)

		if cancel != nil {
			cancel()
		}

		n := count
		cell.ExecutionCount = &n
		count++

		if runErr != nil {
			traceback := fmt.Sprintf("cell %d: %v\n%s", i, runErr, output)

			if !opts.AllowErrors {
				return Result{
					Outcome:   SucceededWithCellError,
					Notebook:  mutated,
					Traceback: traceback,
					Duration:  time.Since(start),
				}, nil
			}

			cell.Outputs = append(cell.Outputs, notebook.Output{
				Kind:       notebook.OutputError,
				ErrorValue: runErr.Error(),
			})

			continue
		}

		cell.Outputs = append(cell.Outputs, notebook.Output{
			Kind: notebook.OutputStream,
			Name: "stdout",
			Text: output,
		})
	}

	return Result{
		Outcome:  SucceededWithoutCellError,
		Notebook: mutated,
		Duration: time.Since(start),
	}, nil
}

func (e *CommandExecutor) runCell(ctx context.Context, source, dir string) (string, error) {
	args := append(append([]string{}, e.Args...), source)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return stderr.String(), fmt.Errorf("executor: run cell: %w", err)
	}

	return stdout.String(), nil
}
