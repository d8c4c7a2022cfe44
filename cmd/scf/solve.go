package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/scfkit/go-scf/archive"
	"github.com/scfkit/go-scf/cache"
	"github.com/scfkit/go-scf/convplot"
	"github.com/scfkit/go-scf/monitor"
	"github.com/scfkit/go-scf/precond"
	"github.com/scfkit/go-scf/problem"
	"github.com/scfkit/go-scf/results"
	"github.com/scfkit/go-scf/solver"
	"github.com/scfkit/go-scf/trace"
)

// fanout forwards each observation to every registered observer.
type fanout []solver.Observer

func (f fanout) Observe(iteration int, residual float64) {
	for _, o := range f {
		o.Observe(iteration, residual)
	}
}

func solve(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	method := fs.String("solver", "damped", "Solver method: damped or anderson")
	damping := fs.Float64("damping", 0.8, "Mixing fraction (also the damp preconditioner factor)")
	tol := fs.Float64("tol", 1e-8, "Convergence tolerance on the residual norm")
	maxiter := fs.Int("maxiter", 100, "Iteration budget")
	window := fs.Int("window", 5, "Anderson history window (0 keeps the full history)")
	precondName := fs.String("precond", "none", "Residual preconditioner: none, damp, or kerker")
	screening := fs.Float64("screening", 0.5, "Kerker screening parameter")
	spacing := fs.Float64("spacing", 1.0, "Kerker grid spacing")
	paramFlags := fs.String("params", "", "Model parameters (format: dim=8,rate=0.9)")
	output := fs.String("out", "", "Output file for results JSON")
	traceOut := fs.String("trace", "", "Output file for the iteration trace (.csv or .jsonl)")
	plotOut := fs.String("plot", "", "Output file for a convergence plot (.png or .svg)")
	dbPath := fs.String("db", "", "Archive the run in this SQLite database")
	useCache := fs.Bool("cache", false, "Memoize map evaluations by state content")
	watch := fs.Bool("watch", false, "Print convergence alerts while iterating")
	downsampleN := fs.Int("downsample", 150, "Target number of points for the stored residual history")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scf solve <problem> [options]

Solve a named fixed-point problem and report how the iteration went.

Problems: %s

Options:
`, strings.Join(problem.Names(), ", "))
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Plain damped iteration
  scf solve contraction --params "dim=8,rate=0.9"

  # Anderson acceleration, results to JSON
  scf solve spectrum --solver anderson --window 5 --out results.json

  # Kerker-preconditioned Anderson with archiving
  scf solve boltzmann --solver anderson --precond kerker --screening 0.5 --db runs.db

  # Record and plot the convergence history
  scf solve contraction --trace trace.csv --plot convergence.png
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

	// The cache wraps the raw map so memoized entries are model
	// evaluations; preconditioning composes on top of it.
	f := model.Map()
	var evalCache *cache.EvalCache
	if *useCache {
		cm := cache.NewCachedMap(f, 0)
		f = cm.Map()
		evalCache = cm.Cache()
	}

	switch *precondName {
	case "none":
	case "damp":
		f = precond.Compose(f, precond.NewDamp(*damping))
	case "kerker":
		if !(*spacing > 0) || !(*screening > 0) {
			return fmt.Errorf("kerker needs positive -spacing and -screening")
		}
		f = precond.Compose(f, precond.NewKerker(*spacing, *screening))
	default:
		return fmt.Errorf("unknown preconditioner %q (expected none, damp, or kerker)", *precondName)
	}

	runID := uuid.NewString()
	rec := trace.NewRecorder(runID, *method, model.Name)

	var obs solver.Observer = rec
	if *watch {
		config := monitor.DefaultConfig()
		config.Tol = *tol
		config.Budget = *maxiter
		w := monitor.NewWatch(runID, config)
		w.AddAlertHandler(func(a monitor.Alert) {
			fmt.Fprintf(os.Stderr, "  %s\n", a.String())
		})
		obs = fanout{rec, w}
	}

	var m solver.Method
	switch *method {
	case "damped":
		m = solver.Damped().WithObserver(obs)
	case "anderson":
		m = solver.Anderson().WithWindow(*window).WithObserver(obs)
	default:
		return fmt.Errorf("unknown solver %q (expected damped or anderson)", *method)
	}

	var store *archive.Store
	if *dbPath != "" {
		store, err = archive.New(*dbPath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		if err := store.CreateRun(runID, model.Name, *method, opts); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
	}

	p := solver.NewProblem(f, model.InitialGuess())
	res, err := m.Solve(p, opts)
	if err != nil {
		if store != nil {
			if ferr := store.FailRun(runID, err); ferr != nil {
				fmt.Fprintf(os.Stderr, "Warning: archive update failed: %v\n", ferr)
			}
		}
		return err
	}

	if store != nil {
		if err := store.FinishRun(runID, res); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
		if err := store.LogChecks(runID, res.ResidualNorms); err != nil {
			return fmt.Errorf("archive checks: %w", err)
		}
		if err := store.SaveSnapshot(runID, res.Fixpoint); err != nil {
			return fmt.Errorf("archive snapshot: %w", err)
		}
	}

	if *output != "" {
		preconditioner := *precondName
		if preconditioner == "none" {
			preconditioner = ""
		}
		builder := results.NewBuilder().
			WithRunID(runID).
			WithModel(model).
			WithSolve(*method, opts, preconditioner).
			WithResult(res, *downsampleN)
		r := builder.Build()
		r.Analysis = results.NewAnalyzer(r).ComputeAll()
		if err := results.WriteJSON(r, *output); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}

	if *traceOut != "" {
		var werr error
		if strings.HasSuffix(*traceOut, ".jsonl") {
			werr = trace.WriteJSONLFile(*traceOut, rec.Trace())
		} else {
			werr = trace.WriteCSVFile(*traceOut, rec.Trace())
		}
		if werr != nil {
			return fmt.Errorf("write trace: %w", werr)
		}
	}

	if *plotOut != "" {
		title := fmt.Sprintf("%s (%s)", model.Name, *method)
		if err := convplot.ResidualPlot(res.ResidualNorms, title, *plotOut); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
	}

	// Summary to stderr so it doesn't interfere with piping
	fmt.Fprintf(os.Stderr, "Solve complete\n")
	fmt.Fprintf(os.Stderr, "  Problem: %s (dim %d)\n", model.Name, model.Dim)
	fmt.Fprintf(os.Stderr, "  Method: %s\n", *method)
	fmt.Fprintf(os.Stderr, "  Status: %s\n", res.Status)
	fmt.Fprintf(os.Stderr, "  Iterations: %d (%d evaluations)\n", res.Iterations, res.Evaluations)
	fmt.Fprintf(os.Stderr, "  Residual: %.3e\n", res.ResidualNorm)
	fmt.Fprintf(os.Stderr, "  Compute time: %.3fs\n", res.Runtime.Seconds())
	if evalCache != nil {
		stats := evalCache.Stats()
		fmt.Fprintf(os.Stderr, "  Cache: %d hits, %d misses (%.0f%% hit rate)\n",
			stats.Hits, stats.Misses, 100*stats.HitRate)
	}
	if *output != "" {
		fmt.Fprintf(os.Stderr, "  Results: %s\n", *output)
	}
	if *traceOut != "" {
		fmt.Fprintf(os.Stderr, "  Trace: %s\n", *traceOut)
	}
	if *plotOut != "" {
		fmt.Fprintf(os.Stderr, "  Plot: %s\n", *plotOut)
	}
	if store != nil {
		fmt.Fprintf(os.Stderr, "  Archived as %s in %s\n", runID, *dbPath)
	}

	return nil
}

// parseKeyValue parses "key1=val1,key2=val2" format
func parseKeyValue(s string) (map[string]float64, error) {
	result := make(map[string]float64)

	if s == "" {
		return result, nil
	}

	pairs := strings.Split(s, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid format: %s (expected key=value)", pair)
		}

		key := strings.TrimSpace(parts[0])
		var value float64
		if _, err := fmt.Sscanf(parts[1], "%f", &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %s", key, parts[1])
		}

		result[key] = value
	}

	return result, nil
}
