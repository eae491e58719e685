// Package cli provides output helpers for the facevault command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hyperjump/facevault/internal/enroll"
	"github.com/hyperjump/facevault/internal/models"
	"github.com/hyperjump/facevault/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or "" (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteMatchResults writes match results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteMatchResults(w io.Writer, response *models.MatchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d matches in %dms (threshold %.2f)\n\n",
		response.Total, response.Took.Milliseconds(), response.Threshold)
	for _, m := range response.Matches {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Tenant: %s\n", m.Rank, m.Score, m.TenantID)
		fmt.Fprintf(w, "Item: %s\n", m.ItemID)
		if m.DisplayName != "" {
			fmt.Fprintf(w, "Name: %s\n", utils.Truncate(m.DisplayName, 80))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteStatus writes an index status summary to w in the given format.
func WriteStatus(w io.Writer, st *enroll.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Vectors:     %d (%d live)\n", st.Vectors, st.LiveVectors)
	fmt.Fprintf(w, "Dimensions:  %d\n", st.Dimensions)
	fmt.Fprintf(w, "Records:     %d\n", st.Records)
	fmt.Fprintf(w, "Disk usage:  %s\n", humanize.IBytes(uint64(st.DiskUsageBytes)))
	if st.PendingReconcile {
		fmt.Fprintln(w, "Reconcile:   pending (run `facevault rebuild`)")
	}
	if len(st.RecordsByTenant) > 0 {
		fmt.Fprintln(w, "Tenants:")
		tenants := make([]string, 0, len(st.RecordsByTenant))
		for t := range st.RecordsByTenant {
			tenants = append(tenants, t)
		}
		sort.Strings(tenants)
		for _, t := range tenants {
			fmt.Fprintf(w, "  %-20s %s\n", t, humanize.Comma(st.RecordsByTenant[t]))
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
