package cli

import (
	"context"

	"github.com/notecache/notecache/internal/config"

	flag "github.com/spf13/pflag"
)

// ProjectAddCmd registers a notebook for scheduled execution.
func ProjectAddCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("project-add", flag.ContinueOnError)
	reader := flags.String("reader", "", "Reader plug-in key (default: \"default\")")
	asset := flags.StringArray("asset", nil, "Asset path needed alongside the notebook; repeatable")

	return &Command{
		Flags: flags,
		Usage: "project-add <uri> [flags]",
		Short: "Add a notebook to the project registry",
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			if len(args) != 1 {
				return errExpectedOneArg
			}

			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			_, err = d.projects.Add(ctx, args[0], *asset, *reader)

			return err
		},
	}
}

// ProjectRemoveCmd removes a project entry by uri.
func ProjectRemoveCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("project-remove", flag.ContinueOnError),
		Usage: "project-remove <uri>",
		Short: "Remove a notebook from the project registry",
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			if len(args) != 1 {
				return errExpectedOneArg
			}

			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.projects.Remove(ctx, args[0])
		},
	}
}

// ProjectListCmd lists every project entry, flagging outdated ones.
func ProjectListCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("project-list", flag.ContinueOnError),
		Usage: "project-list",
		Short: "List notebooks in the project registry",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			records, err := d.projects.List(ctx)
			if err != nil {
				return err
			}

			for _, r := range records {
				_, cached, err := d.projects.CachedMatchOf(ctx, r)
				if err != nil {
					return err
				}

				status := "outdated"
				if cached {
					status = "cached"
				}

				o.Printf("%d\t%s\t%s\n", r.ID, status, r.URI)
			}

			return nil
		},
	}
}
