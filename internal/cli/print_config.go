package cli

import (
	"context"

	"github.com/notecache/notecache/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd shows the effective configuration and the files it was
// loaded from, grounded on the teacher's internal/cli/print_config.go.
func PrintConfigCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println("effective_cwd=" + cfg.EffectiveCwd)
			o.Println("cache_root=" + cfg.CacheRootAbs)
			o.Println("log_level=" + cfg.LogLevel)
			o.Println("scheduling=" + cfg.Scheduling)
			o.Println("sandbox=" + cfg.Sandbox)
			o.Println()
			o.Println("# sources")

			if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
				o.Println("(defaults only)")

				return nil
			}

			if cfg.Sources.Global != "" {
				o.Println("global_config=" + cfg.Sources.Global)
			}

			if cfg.Sources.Project != "" {
				o.Println("project_config=" + cfg.Sources.Project)
			}

			return nil
		},
	}
}
