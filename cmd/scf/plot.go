package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/scfkit/go-scf/convplot"
	"github.com/scfkit/go-scf/trace"
)

func plot(args []string) error {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	output := fs.String("out", "convergence.png", "Output image file (.png or .svg)")
	title := fs.String("title", "", "Plot title (defaults to the traced problem name)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scf plot <trace-file> [options]

Render the residual history of one or more recorded runs as a
log-scale convergence plot. The trace format is inferred from the
file extension (.csv or .jsonl).

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  scf plot trace.csv --out convergence.png
  scf plot runs.jsonl --out comparison.svg --title "damped vs anderson"
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("trace file required")
	}

	traceFile := fs.Arg(0)

	var log *trace.Log
	var err error
	if strings.HasSuffix(traceFile, ".jsonl") {
		log, err = trace.ParseJSONL(traceFile)
	} else {
		log, err = trace.ParseCSV(traceFile)
	}
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}

	traces := log.Traces()
	if len(traces) == 0 {
		return fmt.Errorf("no records in %s", traceFile)
	}

	series := make([]convplot.Series, 0, len(traces))
	for _, tr := range traces {
		series = append(series, convplot.FromTrace(tr))
	}

	t := *title
	if t == "" {
		t = traces[0].Problem
	}

	if err := convplot.ComparePlot(series, t, *output); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Plot saved to %s\n", *output)
	return nil
}
