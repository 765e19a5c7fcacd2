package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dweomer/gotail/internal/tail"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx := context.Background()

	// The obsolete "+N[bcl][f]" form bypasses normal flag parsing entirely.
	if cfg, files, ok := parseObsolete(args); ok {
		return exitCode(tailWith(ctx, cfg, files, os.Stdout, os.Stderr))
	}

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.SetArgs(args)
	return exitCode(rootCmd.ExecuteContext(ctx))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, tail.ErrOutputClosed):
		// As if killed by the broken pipe: 128 + SIGPIPE. The runtime
		// ignores a re-raised SIGPIPE, so the status stands in for it.
		return 141
	case errors.Is(err, tail.ErrIncomplete):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "gotail: %v\n", err)
		return 1
	}
}
