package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "solve":
		if err := solve(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sweep":
		if err := sweepCmd(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "plot":
		if err := plot(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "runs":
		if err := runs(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("scf version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`scf - fixed-point solver toolkit

Usage:
  scf <command> [options]

Commands:
  solve      Solve a named fixed-point problem
  sweep      Sweep solver configurations and rank them
  plot       Render a convergence plot from a recorded trace
  runs       List archived runs
  help       Show this help message
  version    Show version information

Examples:
  # Damped iteration on a built-in problem
  scf solve contraction --params "dim=8,rate=0.9" --out results.json

  # Anderson acceleration with a Kerker preconditioner
  scf solve spectrum --solver anderson --window 5 --precond kerker

  # Record a trace and plot it
  scf solve boltzmann --trace trace.csv
  scf plot trace.csv --out convergence.png

  # Find the best damping for a problem
  scf sweep contraction --from 0.1 --to 1.9 --steps 10

  # Inspect archived runs
  scf runs --db runs.db --limit 10

For command-specific help, run:
  scf <command> --help`)
}
