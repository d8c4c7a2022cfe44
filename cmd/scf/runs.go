package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/scfkit/go-scf/archive"
)

func runs(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "", "Archive database (required)")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	problemName := fs.String("problem", "", "Only list runs of this problem")
	export := fs.String("export", "", "Print one run (with residual history) as JSON instead")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: scf runs --db <database> [options]

List archived solver runs, most recent first.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  scf runs --db runs.db
  scf runs --db runs.db --problem boltzmann --limit 5
  scf runs --db runs.db --export 0b0c9a1e-... > run.json
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dbPath == "" {
		fs.Usage()
		return fmt.Errorf("--db required")
	}

	store, err := archive.New(*dbPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	if *export != "" {
		data, err := store.ExportRunJSON(*export)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	var rs []*archive.Run
	if *problemName != "" {
		rs, err = store.RunsForProblem(*problemName)
	} else {
		rs, err = store.RecentRuns(*limit)
	}
	if err != nil {
		return err
	}
	if len(rs) > *limit {
		rs = rs[:*limit]
	}

	if len(rs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-9s  %-10s  %6s  %12s  %s\n",
		"ID", "Problem", "Method", "Status", "Iters", "Residual", "Started")
	for _, r := range rs {
		fmt.Printf("%-36s  %-12s  %-9s  %-10s  %6d  %12s  %s\n",
			r.ID, r.Problem, r.Method, r.Status, r.Iterations,
			formatResidual(r.FinalResidual),
			r.StartedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func formatResidual(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.3e", v)
}
