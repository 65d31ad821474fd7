package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `vdir - virtual directory and federation sync

Usage:
  vdir <command> [options]

Commands:
  sync        Run synchronization jobs
  search      Search the mapped directory tree
  filter      Parse and print an LDAP filter
  create      Create the storage of sources
  config      Configuration management
  version     Show version information

Use "vdir <command> -h" for more information about a command.
`)
}

func printSyncUsage(w io.Writer) {
	fmt.Fprint(w, `Run synchronization jobs

Usage:
  vdir sync [options]

Options:
  -config string
        Path to configuration file (required)
  -job string
        Run only this job (default: all jobs)
  -load-only
        Load the shadow tables without comparing or switching
  -schedule
        Keep running and synchronize every job at its interval
  -h, -help
        Show this help message
`)
}

func printSearchUsage(w io.Writer) {
	fmt.Fprint(w, `Search the mapped directory tree

Usage:
  vdir search [options]

Options:
  -config string
        Path to configuration file (required)
  -base string
        Search base DN (required)
  -scope string
        Search scope: base, one, sub (default "sub")
  -filter string
        Search filter (default "(objectClass=*)")
  -attrs string
        Comma separated list of attributes to return
  -limit int
        Maximum number of entries (default: no limit)
  -h, -help
        Show this help message

Results are written as LDIF.
`)
}

func printFilterUsage(w io.Writer) {
	fmt.Fprint(w, `Parse and print an LDAP filter

Usage:
  vdir filter [options] <filter>

Options:
  -simplify
        Fold constants and remove double negations
  -attributes
        List the attributes the filter refers to
  -h, -help
        Show this help message
`)
}

func printCreateUsage(w io.Writer) {
	fmt.Fprint(w, `Create the storage of sources

Usage:
  vdir create [options] [source...]

Options:
  -config string
        Path to configuration file (required)
  -h, -help
        Show this help message

Without source names the storage of every source is created. Existing
tables are left untouched.
`)
}

func printConfigUsage(w io.Writer) {
	fmt.Fprint(w, `Configuration management

Usage:
  vdir config <subcommand> [options]

Subcommands:
  validate    Validate configuration file
  init        Generate default configuration
  show        Show effective configuration

Use "vdir config <subcommand> -h" for more information.
`)
}

func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  vdir version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}
