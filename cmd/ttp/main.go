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

	var err error
	switch command := os.Args[1]; command {
	case "run":
		err = runCommand(os.Args[2:])
	case "plan":
		err = planCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	usage := `ttp - distributed triangle counting with triangle type partitioning

Usage:
  ttp <command> [options]

Available Commands:
  run         Count the triangles of an edge list
  plan        Show how an edge list would replicate over the partitions
  history     List finished runs stored in PostgreSQL
  help        Show this help message

Inputs are local paths, "-" for stdin, or s3://bucket/key. Files ending
in .gz are decompressed.

Examples:
  # Count triangles with 16 partitions
  ttp run -input graph.txt -partitions 16

  # Per-type output, counting groups on remote workers
  ttp run -input s3://graphs/web.txt.gz -by-type -remote

  # Cross-check with the wedge baseline on a moderate graph
  ttp run -input graph.txt -algorithm wedge

  # Size p on a sample before a full run
  ttp plan -input sample.txt -partitions 32

Use "ttp <command> -h" for the flags of a command.
`
	fmt.Print(usage)
}
