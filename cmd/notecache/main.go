// Command notecache is the CLI entry point for the content-addressed
// notebook execution cache.
package main

import (
	"os"
	"strings"

	"github.com/notecache/notecache/internal/cli"
)

func main() {
	env := make(map[string]string, len(os.Environ()))

	for _, kv := range os.Environ() {
		key, value, found := strings.Cut(kv, "=")
		if found {
			env[key] = value
		}
	}

	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args, env))
}
