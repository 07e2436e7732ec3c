package main

import (
	"fmt"
	"os"
)

const usageText = `mailgoat - batch email dispatch

Usage:
  mailgoat send      -to <addr> -subject <s> (-body <b> | -html <h>) [flags]
  mailgoat batch     -file <jobs.json|.jsonl|.csv> [-concurrency N] [-resume] [flags]
  mailgoat campaign  -file <jobs.json|.jsonl|.csv> [-delay 1s] [flags]
  mailgoat schedule  (-file <jobs> | -to ... -subject ... -body ...) -at <RFC3339> [flags]
  mailgoat scheduler [flags]
  mailgoat serve     [flags]

Common flags:
  -config <path>   YAML config file (MAILGOAT_* env vars override it)

Run "mailgoat <command> -h" for command flags.
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "send":
		err = runSend(args)
	case "batch":
		err = runBatch(args)
	case "campaign":
		err = runCampaign(args)
	case "schedule":
		err = runSchedule(args)
	case "scheduler":
		err = runScheduler(args)
	case "serve":
		err = runServe(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
