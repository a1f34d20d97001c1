package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []SessionRow:
		if len(data) == 0 {
			fmt.Println("No sessions found.")
			return
		}
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tVERSION\tPATH\tUPDATED")
		for _, s := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				shortID(s.ID), s.ProjectType, s.Status, s.Version, truncate(s.ProjectPath, 40), s.UpdatedAt)
		}
	case SessionRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Type:\t%s\n", data.ProjectType)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		fmt.Fprintf(w, "Path:\t%s\n", data.ProjectPath)
		if data.ClaudeSessionID != "" {
			fmt.Fprintf(w, "Claude session:\t%s\n", data.ClaudeSessionID)
		}
		fmt.Fprintf(w, "Version:\t%d\n", data.Version)
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
		fmt.Fprintf(w, "Updated:\t%s\n", data.UpdatedAt)
		for _, k := range sortedKeys(data.Metadata) {
			fmt.Fprintf(w, "Meta %s:\t%s\n", k, data.Metadata[k])
		}
	case []EventRow:
		if len(data) == 0 {
			fmt.Println("No events found.")
			return
		}
		fmt.Fprintln(w, "EVENT\tTYPE\tTOOL\tCREATED")
		for _, e := range data {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.EventID, e.EventType, e.ToolName, e.CreatedAt)
		}
	case StatsResponse:
		fmt.Fprintf(w, "Workspace root:\t%s\n", data.Root)
		fmt.Fprintf(w, "Workspaces:\t%d/%d\n", data.Workspaces.Count, data.Workspaces.Max)
		fmt.Fprintf(w, "Disk free:\t%s of %s\n", formatBytes(data.Disk.FreeBytes), formatBytes(data.Disk.TotalBytes))
		if data.Disk.LowSpace {
			fmt.Fprintf(w, "Disk:\tLOW SPACE\n")
		}
		statuses := make([]string, 0, len(data.Sessions))
		for status := range data.Sessions {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(w, "Sessions %s:\t%d\n", status, data.Sessions[status])
		}
		fmt.Fprintf(w, "Updates first-try:\t%d\n", data.Retry.FirstTrySuccesses)
		fmt.Fprintf(w, "Updates retried:\t%d\n", data.Retry.RetriedSuccesses)
		fmt.Fprintf(w, "Updates exhausted:\t%d\n", data.Retry.ExhaustedFailures)
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
