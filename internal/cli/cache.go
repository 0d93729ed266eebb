package cli

import (
	"context"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/notecache/notecache/internal/config"

	flag "github.com/spf13/pflag"
)

// CacheListCmd lists every cache record.
func CacheListCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cache-list", flag.ContinueOnError),
		Usage: "cache-list",
		Short: "List cache records",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			records, err := d.engine.ListRecords(ctx)
			if err != nil {
				return err
			}

			for _, r := range records {
				o.Printf("%d\t%s\t%s\t%s\n", r.ID, r.Fingerprint, r.OriginURI, r.Description)
			}

			return nil
		},
	}
}

// CacheStatsCmd reports aggregate cache size and limit counts.
func CacheStatsCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cache-stats", flag.ContinueOnError),
		Usage: "cache-stats",
		Short: "Show cache size and limit",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			stats, err := d.engine.Stats(ctx)
			if err != nil {
				return err
			}

			o.Println("records:", stats.RecordCount)
			o.Println("limit:", stats.CacheLimit)
			o.Println("on_disk:", humanize.Bytes(uint64(stats.ApproxBytes))) //nolint:gosec

			return nil
		},
	}
}

// CacheRemoveCmd removes one cache record by id.
func CacheRemoveCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cache-remove", flag.ContinueOnError),
		Usage: "cache-remove <id>",
		Short: "Remove a cache record by id",
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			id, err := parseID(args)
			if err != nil {
				return err
			}

			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.engine.Remove(ctx, id)
		},
	}
}

// CacheClearCmd empties the whole cache.
func CacheClearCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("cache-clear", flag.ContinueOnError),
		Usage: "cache-clear",
		Short: "Remove every cache record and blob",
		Exec: func(ctx context.Context, _ *IO, _ []string) error {
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.engine.Clear(ctx)
		},
	}
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errExpectedOneArg
	}

	return strconv.ParseInt(args[0], 10, 64)
}
