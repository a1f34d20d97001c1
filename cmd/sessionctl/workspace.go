package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type DiskRow struct {
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	LowSpace   bool   `json:"low_space"`
}

type CountRow struct {
	Count         int  `json:"count"`
	Max           int  `json:"max"`
	QuotaExceeded bool `json:"quota_exceeded"`
}

type RetryRow struct {
	FirstTrySuccesses    int64 `json:"first_try_successes"`
	RetriedSuccesses     int64 `json:"retried_successes"`
	ExhaustedFailures    int64 `json:"exhausted_failures"`
	NonRetryableFailures int64 `json:"non_retryable_failures"`
	TotalAttempts        int64 `json:"total_attempts"`
}

type StatsResponse struct {
	Root       string           `json:"root"`
	Disk       DiskRow          `json:"disk"`
	Workspaces CountRow         `json:"workspaces"`
	Sessions   map[string]int64 `json:"sessions_by_status"`
	Retry      RetryRow         `json:"retry"`
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Workspace maintenance commands",
}

var wsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show workspace root capacity and session counts",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var stats StatsResponse
		if err := client.Get("/v1/workspaces/stats", &stats); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(stats)
	},
}

func init() {
	workspaceCmd.AddCommand(wsStatsCmd)
	rootCmd.AddCommand(workspaceCmd)
}
