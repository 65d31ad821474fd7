// Package main provides the vdir command line: synchronization jobs,
// searches over the mapped tree and configuration tooling.
package main

import (
	"fmt"
	"io"
	"os"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	exitCode := run(os.Args)
	os.Exit(exitCode)
}

// run executes the CLI and returns an exit code.
func run(args []string) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 1
	}

	switch args[1] {
	case "sync":
		return syncCmd(args[2:])
	case "search":
		return searchCmd(args[2:])
	case "filter":
		return filterCmd(args[2:])
	case "create":
		return createCmd(args[2:])
	case "config":
		return configCmd(args[2:])
	case "version":
		return versionCmd(args[2:])
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		fmt.Fprintln(stderr, "Run 'vdir help' for usage.")
		return 1
	}
}
