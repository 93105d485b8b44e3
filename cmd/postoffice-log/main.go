// Command postoffice-log views and analyzes protocol logs written by
// postoffice-client -protocol-log.
//
// Usage:
//
//	postoffice-log <command> [flags] <file.plog>
//
// Examples:
//
//	# View inbound envelopes only
//	postoffice-log view -layer wire -direction in session.plog
//
//	# Export to CSV
//	postoffice-log export -format csv -o session.csv session.plog
//
//	# Keep one client's traffic
//	postoffice-log filter -client-id c1 -o c1.plog session.plog
//
//	# Show statistics
//	postoffice-log stats session.plog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zhycit/postoffice-go/cmd/postoffice-log/commands"
)

const usage = `postoffice-log - Postoffice Protocol Log Analyzer

Usage:
  postoffice-log <command> [flags] <file.plog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "postoffice-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "postoffice-log %s - %s\n\nUsage:\n  postoffice-log %s [flags] <file.plog>\n\nFlags:\n",
			name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

func selectionFlags(fs *flag.FlagSet, sel *commands.Selection) {
	fs.StringVar(&sel.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&sel.ClientID, "client-id", "", "Filter by client ID")
	fs.StringVar(&sel.EnvelopeType, "type", "", "Filter by envelope type (msg, heartbeat, login, ...)")
	fs.StringVar(&sel.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&sel.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&sel.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	fs.StringVar(&sel.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&sel.Category, "category", "", "Filter by category (message, control, state, error)")
}

func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) error {
	fs := newFlagSet("view", "View log file in human-readable format")
	var sel commands.Selection
	selectionFlags(fs, &sel)
	path := pathArg(fs, args)
	return commands.RunView(path, sel, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export log file to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := pathArg(fs, args)
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	var sel commands.Selection
	selectionFlags(fs, &sel)
	path := pathArg(fs, args)

	n, err := commands.RunFilter(path, *output, sel)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the log file")
	path := pathArg(fs, args)
	return commands.RunStats(path, os.Stdout)
}
