// Package cli implements notecache's thin command-line layer — explicitly
// out of the cache engine's core scope, but still the ambient entry point
// a user invokes — grounded on the teacher's internal/cli dispatch
// pattern (run.go, command.go, io.go).
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/notecache/notecache/internal/config"
	"github.com/notecache/notecache/internal/obs"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns an exit code.
func Run(out, errOut io.Writer, args []string, env map[string]string) int {
	globalFlags := flag.NewFlagSet("notecache", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagCacheRoot := globalFlags.String("cache-root", "", "Override cache `directory`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		CacheRootFlag:   *flagCacheRoot,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	obs.Init(obs.Options{Level: cfg.LogLevel, Console: true})

	commands := allCommands(cfg)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	exitCode := cmd.Run(context.Background(), cmdIO, commandAndArgs[1:])
	if exitCode != 0 {
		return exitCode
	}

	return cmdIO.Finish()
}

func allCommands(cfg config.Config) []*Command {
	return []*Command{
		ProjectAddCmd(cfg),
		ProjectListCmd(cfg),
		ProjectRemoveCmd(cfg),
		ExecuteCmd(cfg),
		CacheListCmd(cfg),
		CacheStatsCmd(cfg),
		CacheRemoveCmd(cfg),
		CacheClearCmd(cfg),
		PrintConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --cache-root <dir>     Override cache directory`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: notecache [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'notecache --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "notecache - content-addressed cache for executed notebooks")
	fprintln(w)
	fprintln(w, "Usage: notecache [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
