// Command channelize-log views and analyzes protocol capture files written
// by channelize --capture.
//
// Usage:
//
//	channelize-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV
//	filter   Filter capture file and write to a new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	channelize-log view session.cbor
//
//	# View HTTP calls of the events domain
//	channelize-log view --layer http --domain events session.cbor
//
//	# Follow one subscription context
//	channelize-log view --request-id 42 session.cbor
//
//	# Export to CSV
//	channelize-log export --format csv -o session.csv session.cbor
//
//	# Keep one connection
//	channelize-log filter --conn-id 3f2a9c1e -o conn.cbor session.cbor
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/channelize/channelize-go/cmd/channelize-log/commands"
)

const usage = `channelize-log - Channelize Protocol Capture Analyzer

Usage:
  channelize-log <command> [flags] <file.cbor>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV
  filter   Filter capture file and write to a new file
  stats    Show statistics about the capture file

Use "channelize-log <command> --help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "channelize-log %s - %s\n\nUsage:\n  channelize-log %s [flags] <file.cbor>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

func addFilterFlags(fs *pflag.FlagSet) *commands.FilterOptions {
	var o commands.FilterOptions
	fs.StringVar(&o.ConnID, "conn-id", "", "filter by connection ID")
	fs.StringVar(&o.Domain, "domain", "", "filter by subscription domain")
	fs.StringVar(&o.RequestID, "request-id", "", "filter by request ID")
	fs.StringVar(&o.TimeStart, "time-start", "", "filter by start time (RFC3339)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "filter by end time (RFC3339)")
	fs.StringVar(&o.Layer, "layer", "", "filter by layer (transport, hub, http, manager)")
	fs.StringVar(&o.Direction, "direction", "", "filter by direction (in, out, none)")
	fs.StringVar(&o.Category, "category", "", "filter by category (message, control, state, error)")
	return &o
}

// parse parses args and returns the capture file path.
func parse(fs *pflag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format")
	opts := addFilterFlags(fs)
	path := parse(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file to JSONL or CSV")
	format := fs.String("format", "jsonl", "output format (jsonl, csv)")
	output := fs.StringP("output", "o", "", "output file (default: stdout)")
	opts := addFilterFlags(fs)
	path := parse(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunExport(path, *format, *output, filter); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to a new file")
	output := fs.StringP("output", "o", "", "output file (required)")
	opts := addFilterFlags(fs)
	path := parse(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}
	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file")
	path := parse(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
