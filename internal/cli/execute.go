package cli

import (
	"context"
	"time"

	"github.com/notecache/notecache/internal/config"
	"github.com/notecache/notecache/internal/executor"
	"github.com/notecache/notecache/internal/pipeline"

	flag "github.com/spf13/pflag"
)

// ExecuteCmd runs every outdated project entry through the execution
// pipeline.
func ExecuteCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("execute", flag.ContinueOnError)
	parallel := flags.Bool("parallel", cfg.Scheduling == "parallel", "Run outdated notebooks concurrently")
	workers := flags.Int("workers", cfg.Workers, "Worker pool size for --parallel (0 = number of hardware threads)")
	tempDir := flags.Bool("temp-dir", cfg.Sandbox == "temp_dir", "Execute each notebook in a fresh temp directory instead of in place")
	allowErrors := flags.Bool("allow-errors", cfg.AllowErrors, "Continue past a raised cell exception instead of aborting the notebook")
	perCellTimeout := flags.Duration("per-cell-timeout", time.Duration(cfg.PerCellTimeout)*time.Second, "Per-cell execution timeout (0 = no timeout)")
	command := flags.String("command", "python3", "Interpreter command the reference executor invokes")

	return &Command{
		Flags: flags,
		Usage: "execute [uri ...] [flags]",
		Short: "Execute every outdated notebook and cache successful runs",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			scheduling := pipeline.SchedulingSerial
			if *parallel {
				scheduling = pipeline.SchedulingParallel
			}

			sandbox := pipeline.SandboxInPlace
			if *tempDir {
				sandbox = pipeline.SandboxTempDir
			}

			result, err := d.pipe.Run(ctx, pipeline.Options{
				URIs:           args,
				PerCellTimeout: *perCellTimeout,
				AllowErrors:    *allowErrors,
				Scheduling:     scheduling,
				Sandbox:        sandbox,
				Workers:        *workers,
				Executor:       executor.NewCommandExecutor(*command),
			})
			if err != nil {
				return err
			}

			o.Println("run_id:", result.RunID)

			for _, uri := range result.Succeeded {
				o.Println("succeeded:", uri)
			}

			for _, uri := range result.Excepted {
				o.Println("excepted:", uri)
				o.Warn("cell exception in " + uri + "; see project-list traceback")
			}

			for _, uri := range result.Errored {
				o.Println("errored:", uri)
				o.Warn("executor failed for " + uri)
			}

			return nil
		},
	}
}
