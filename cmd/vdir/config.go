package main

import (
	"flag"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/KilimcininKorOglu/vdir/internal/config"
)

func configCmd(args []string) int {
	if len(args) == 0 {
		printConfigUsage(stdout)
		return 0
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return configValidateCmd(args[1:])
	case "init":
		return configInitCmd(args[1:])
	case "show":
		return configShowCmd(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, "Run 'vdir config help' for usage.")
		return 1
	}
}

func configValidateCmd(args []string) int {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Fprintln(stdout, "Validate configuration file")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Usage:")
		fmt.Fprintln(stdout, "  vdir config validate -config <file>")
		return 0
	}

	if *configFile == "" {
		fmt.Fprintln(stderr, "Error: -config is required")
		return 1
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	errs := config.ValidateConfig(cfg)
	if len(errs) > 0 {
		fmt.Fprintln(stderr, failedLabel("Configuration errors:"))
		for _, e := range errs {
			fmt.Fprintf(stderr, "  - %s\n", e)
		}
		return 1
	}

	fmt.Fprintln(stdout, okLabel("Configuration is valid"))
	fmt.Fprintf(stdout, "  Connections: %d\n", len(cfg.Connections))
	fmt.Fprintf(stdout, "  Sources:     %d\n", len(cfg.Sources))
	fmt.Fprintf(stdout, "  Entries:     %d\n", len(cfg.Entries))
	fmt.Fprintf(stdout, "  Jobs:        %d\n", len(cfg.Jobs))
	return 0
}

func configInitCmd(args []string) int {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Fprintln(stdout, "Generate default configuration")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Usage:")
		fmt.Fprintln(stdout, "  vdir config init")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Outputs default configuration to stdout in YAML format.")
		return 0
	}

	data, err := config.Marshal(config.DefaultConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprint(stdout, string(data))
	return 0
}

func configShowCmd(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	dump := fs.Bool("dump", false, "Dump the decoded Go structures")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Fprintln(stdout, "Show effective configuration")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Usage:")
		fmt.Fprintln(stdout, "  vdir config show -config <file> [-dump]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Prints the configuration after environment substitution and defaults.")
		return 0
	}

	if *configFile == "" {
		fmt.Fprintln(stderr, "Error: -config is required")
		return 1
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *dump {
		dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		dumper.Fdump(stdout, cfg)
		return 0
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprint(stdout, string(data))
	return 0
}
