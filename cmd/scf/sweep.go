package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/scfkit/go-scf/problem"
	"github.com/scfkit/go-scf/results"
	"github.com/scfkit/go-scf/solver"
	"github.com/scfkit/go-scf/sweep"
)

func sweepCmd(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	from := fs.Float64("from", 0.1, "Lowest damping to try")
	to := fs.Float64("to", 1.9, "Highest damping to try")
	steps := fs.Int("steps", 10, "Number of damping values")
	windows := fs.String("windows", "", "Sweep Anderson windows instead (format: 0,2,5,10)")
	compare := fs.Bool("compare", false, "Compare damped and anderson at the base configuration")
	objective := fs.String("objective", "min_iterations", "Ranking objective")
	damping := fs.Float64("damping", 0.8, "Base damping (used by window sweeps and comparisons)")
	tol := fs.Float64("tol", 1e-8, "Convergence tolerance on the residual norm")
	maxiter := fs.Int("maxiter", 100, "Iteration budget per variant")
	paramFlags := fs.String("params", "", "Model parameters (format: dim=8,rate=0.9)")
	output := fs.String("out", "", "Output file for sweep results JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scf sweep <problem> [options]

Run every configuration in a sweep and rank them by an objective.
By default the damping is swept; --windows sweeps Anderson history
windows and --compare pits the two methods against each other.

Problems: %s

Options:
`, strings.Join(problem.Names(), ", "))
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Objectives:
  min_iterations   Fewest iterations to converge
  min_evaluations  Fewest map evaluations
  min_residual     Deepest final residual
  min_time         Shortest compute time

Examples:
  # Damping sweep
  scf sweep contraction --from 0.1 --to 1.9 --steps 10

  # Anderson window sweep on a harder problem
  scf sweep spectrum --params "dim=8,max=0.95" --windows "0,2,5,10"

  # Which method wins here?
  scf sweep boltzmann --compare --maxiter 500
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("problem name required (one of: %s)", strings.Join(problem.Names(), ", "))
	}

	params, err := parseKeyValue(*paramFlags)
	if err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	model, err := problem.New(fs.Arg(0), params)
	if err != nil {
		return err
	}

	opts := &solver.Options{MaxIters: *maxiter, Tol: *tol, Damping: *damping}
	if err := opts.Validate(); err != nil {
		return err
	}

	analyzer := sweep.NewAnalyzer(model).WithOptions(opts).WithObjective(*objective)

	var sr *results.SweepResults
	switch {
	case *compare:
		sr, err = analyzer.CompareMethods()
	case *windows != "":
		ws, perr := parseWindows(*windows)
		if perr != nil {
			return fmt.Errorf("parse windows: %w", perr)
		}
		sr, err = analyzer.SweepWindow(ws)
	default:
		sr, err = analyzer.SweepDampingRange(*from, *to, *steps)
	}
	if err != nil {
		return err
	}

	printSweepTable(sr)

	if *output != "" {
		data, merr := json.MarshalIndent(sr, "", "  ")
		if merr != nil {
			return fmt.Errorf("encode sweep results: %w", merr)
		}
		if werr := os.WriteFile(*output, data, 0644); werr != nil {
			return fmt.Errorf("write sweep results: %w", werr)
		}
		fmt.Fprintf(os.Stderr, "Sweep results written to %s\n", *output)
	}

	return nil
}

func parseWindows(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	windows := make([]int, 0, len(parts))
	for _, part := range parts {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid window %q", part)
		}
		if w < 0 {
			return nil, fmt.Errorf("window %d < 0", w)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func printSweepTable(sr *results.SweepResults) {
	fmt.Printf("\n=== Sweep: %s (objective %s) ===\n\n", sr.Problem, sr.Objective)
	fmt.Printf("%4s  %-9s  %-22s  %6s  %5s  %12s  %10s\n",
		"Rank", "Method", "Parameters", "Iters", "Conv", "Residual", "Score")
	for _, v := range sr.Variants {
		fmt.Printf("%4d  %-9s  %-22s  %6d  %5v  %12.3e  %10.4g\n",
			v.Rank, v.Method, formatParams(v.Parameters),
			v.Metrics.Iterations, v.Metrics.Converged,
			float64(v.Metrics.FinalResidual), float64(v.Score))
	}
	fmt.Println()
	fmt.Printf("Converged: %d/%d\n", sr.Summary.ConvergedCount, sr.Summary.TotalVariants)

	if len(sr.Recommended) > 0 {
		fmt.Println("Recommendations:")
		for param, rec := range sr.Recommended {
			fmt.Printf("  %s: %s\n", param, rec)
		}
	}
}

func formatParams(params map[string]float64) string {
	if len(params) == 0 {
		return "-"
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, params[name]))
	}
	return strings.Join(parts, " ")
}
