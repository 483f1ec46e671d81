package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	tableWidth   = 110
	maxDataWidth = 40
)

// renderLogsTable displays a page of logs in a formatted table
func renderLogsTable(w io.Writer, page *logPage, quiet bool) {
	if len(page.Items) == 0 {
		warningColor.Fprintf(w, "No logs found (total %d, offset %d)\n", page.Total, page.Offset)
		return
	}

	if !quiet {
		headerColor.Fprintln(w, "REQUEST LOG")
		headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-39s  %s\n", "ID", "Timestamp (UTC)", "IP", "Data")
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))

	for _, item := range page.Items {
		fmt.Fprintf(w, "%-36s  %-19s  %-39s  %s\n",
			item.ID,
			formatTimestamp(item.Timestamp),
			item.IP,
			truncate(item.Data, maxDataWidth))
	}

	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
	if !quiet {
		infoColor.Fprintf(w, "Showing %d-%d of %d\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
		if remaining := page.Total - int64(page.Offset+len(page.Items)); remaining > 0 {
			successColor.Fprintf(w, "Next page: --offset %d\n", page.Offset+len(page.Items))
		}
	}
}

// formatTimestamp formats epoch seconds
func formatTimestamp(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputAsYAML(w io.Writer, data interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}
