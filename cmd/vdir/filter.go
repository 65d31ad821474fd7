package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/filter"
)

func filterCmd(args []string) int {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(stderr)

	simplify := fs.Bool("simplify", false, "Fold constants and double negations")
	attributes := fs.Bool("attributes", false, "List the referenced attributes")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printFilterUsage(stdout)
		return 0
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: exactly one filter is required")
		return 1
	}

	f, err := filter.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *simplify {
		f = filter.Simplify(f)
	}

	fmt.Fprintln(stdout, f.String())
	if *attributes {
		fmt.Fprintln(stdout, strings.Join(filter.Attributes(f), " "))
	}
	return 0
}
