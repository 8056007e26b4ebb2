// Command ipcbridge-inspect replays the recent contents of a tracestore
// database to the terminal, for debugging a running bridge offline without
// attaching the devtools WebSocket sidecar.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cryguy/ipcbridge/internal/tracestore"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		dataDir = flag.String("data-dir", ".", "directory containing traces/ (see internal/tracestore.Open)")
		name    = flag.String("name", "default", "trace database name")
		limit   = flag.Int("limit", 50, "number of most recent events to show")
		follow  = flag.Bool("follow", false, "keep polling for new events every second")
	)
	flag.Usage = printUsage
	flag.Parse()

	store, err := tracestore.Open(*dataDir, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ipcbridge-inspect: opening trace store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	color := isatty.IsTerminal(os.Stdout.Fd())

	seen := int64(0)
	if err := printRecent(store, *limit, color, &seen); err != nil {
		fmt.Fprintf(os.Stderr, "ipcbridge-inspect: %v\n", err)
		os.Exit(1)
	}

	if !*follow {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := printRecent(store, *limit, color, &seen); err != nil {
			fmt.Fprintf(os.Stderr, "ipcbridge-inspect: %v\n", err)
			os.Exit(1)
		}
	}
}

// printRecent prints rows newer than the highest ID seen so far, updating seen.
func printRecent(store *tracestore.Store, limit int, color bool, seen *int64) error {
	rows, err := store.Recent(limit)
	if err != nil {
		return fmt.Errorf("reading recent events: %w", err)
	}
	// rows come back newest first; print oldest-unseen first.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.ID <= *seen {
			continue
		}
		printRow(row, color)
		*seen = row.ID
	}
	return nil
}

func printRow(row tracestore.Row, color bool) {
	age := humanize.Time(row.RecordedAt)
	if !color {
		fmt.Printf("[%d] %s fn=%d %s (%s)\n", row.ID, row.Kind, row.FnID, row.Detail, age)
		return
	}
	fmt.Printf("%s[%d]%s %s%-12s%s fn=%d %s %s(%s)%s\n",
		colorDim, row.ID, colorReset,
		kindColor(row.Kind), row.Kind, colorReset,
		row.FnID, row.Detail,
		colorDim, age, colorReset)
}

func kindColor(kind string) string {
	switch kind {
	case "error":
		return colorRed
	case "drop_reference":
		return colorYellow
	default:
		return colorCyan
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ipcbridge-inspect: replay a bridge trace store

Usage: ipcbridge-inspect [options]

Options:
`)
	flag.PrintDefaults()
}
