package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/federation"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/pipeline"
)

func searchCmd(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	base := fs.String("base", "", "Search base DN")
	scope := fs.String("scope", "sub", "Search scope: base, one, sub")
	filterText := fs.String("filter", "(objectClass=*)", "Search filter")
	attrs := fs.String("attrs", "", "Comma separated attributes to return")
	limit := fs.Int("limit", 0, "Maximum number of entries")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printSearchUsage(stdout)
		return 0
	}

	if *base == "" {
		fmt.Fprintln(stderr, "Error: -base is required")
		return 1
	}

	req := directory.NewSearchRequest(*base)
	var err error
	if req.Scope, err = directory.ParseScope(*scope); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if req.Filter, err = filter.Parse(*filterText); err != nil {
		fmt.Fprintf(stderr, "Error: invalid filter: %v\n", err)
		return 1
	}
	req.Attributes = splitList(*attrs)
	req.SizeLimit = *limit

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	p, logger, err := openPartition(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closePartition(p)

	session := p.NewSession()
	defer session.Close()

	ctx, requestID := logging.WithRequestID(logging.NewContext(ctx, logger))
	logger.Debug("search", "request_id", requestID, "base", req.BaseDN, "scope", req.Scope, "filter", req.Filter)

	collect := pipeline.NewCollect(*limit)
	if err := p.Search(ctx, session, req, pipeline.NewSort(collect)); err != nil {
		fmt.Fprintf(stderr, "Error: search failed: %v\n", err)
		return 1
	}

	results := collect.Results()
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprint(stdout, federation.FormatEntry(r.DN, r.Attributes))
	}
	fmt.Fprintf(stderr, "%d entries\n", len(results))
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
