package main

import (
	"fmt"
	"io"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/olekukonko/tablewriter"
)

func filterStatus(outcomes []*models.Outcome, status string) []*models.Outcome {
	if status == "" {
		return outcomes
	}
	out := make([]*models.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func printTable(w io.Writer, outcomes []*models.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "no outcomes")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Time", "Pool", "Type", "Source", "Status", "Latency", "Detail")
	for _, o := range outcomes {
		table.Append(
			o.Timestamp.Local().Format("15:04:05"),
			short(o.PoolAddress),
			o.PoolType,
			o.Source,
			o.Status,
			o.Latency.Round(time.Millisecond).String(),
			detail(o),
		)
	}
	table.Render()
}

func formatLine(o *models.Outcome) string {
	line := fmt.Sprintf("%s %-9s %s %s %s",
		o.Timestamp.Local().Format("15:04:05"),
		o.Status, o.PoolType, o.PoolAddress,
		o.Latency.Round(time.Millisecond))
	if d := detail(o); d != "" {
		line += " | " + d
	}
	return line
}

func detail(o *models.Outcome) string {
	switch {
	case o.Signature != "":
		return fmt.Sprintf("%s (%d attempts)", short(o.Signature), o.Attempts)
	case o.Reason != "":
		return o.Reason
	}
	return ""
}

// short keeps the head and tail of a base58 address.
func short(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}
