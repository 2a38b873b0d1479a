// Package report formats sweep results into comparison tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/weiihann/netsweep/sweep"
)

// Generate writes a markdown table with one row per record, followed by
// a short summary.
func Generate(w io.Writer, space sweep.Space, records []sweep.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Sweep Results")
	fmt.Fprintln(w)

	names := space.Names()

	header := make([]string, 0, len(names)+2)
	header = append(header, names...)
	header = append(header, "throughput", "log")

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")

	for _, r := range records {
		row := make([]string, 0, len(header))

		for _, name := range names {
			v, ok := r.Value(name)
			if !ok {
				row = append(row, "-")
				continue
			}

			row = append(row, fmt.Sprint(v))
		}

		row = append(row, formatThroughput(r.Result), formatLog(r.LogPath))
		table.Append(row)
	}

	table.Render()

	fmt.Fprintln(w)

	measured := 0
	for _, r := range records {
		if r.Result.OK {
			measured++
		}
	}

	fmt.Fprintf(w, "Configurations: %d, with results: %d\n", len(records), measured)

	if best, ok := findBest(records); ok {
		fmt.Fprintf(w, "Best: %s at %s\n", best.Key(), formatThroughput(best.Result))
	}

	return nil
}

// GenerateJSON writes records as JSON to w.
func GenerateJSON(w io.Writer, records []sweep.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(records)
}

func findBest(records []sweep.Record) (sweep.Record, bool) {
	var (
		best  sweep.Record
		found bool
	)

	for _, r := range records {
		if !r.Result.OK {
			continue
		}

		if !found || r.Result.Throughput > best.Result.Throughput {
			best = r
			found = true
		}
	}

	return best, found
}

// formatThroughput renders MB per second as a byte rate.
func formatThroughput(res sweep.Result) string {
	if !res.OK {
		return "-"
	}

	return humanize.IBytes(uint64(res.Throughput*humanize.MiByte)) + "/s"
}

func formatLog(path string) string {
	if path == "" {
		return "-"
	}

	return path
}
