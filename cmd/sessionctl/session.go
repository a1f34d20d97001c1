package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type SessionRow struct {
	ID              string            `json:"id"`
	ProjectPath     string            `json:"project_path"`
	ProjectType     string            `json:"project_type"`
	Status          string            `json:"status"`
	ClaudeSessionID string            `json:"claude_session_id,omitempty"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	Version         int64             `json:"version"`
}

type SessionListResponse struct {
	Sessions []SessionRow `json:"sessions"`
}

type EventRow struct {
	EventID   int64           `json:"event_id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	ToolName  string          `json:"tool_name,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

type EventListResponse struct {
	Events []EventRow `json:"events"`
}

type UpdateResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

var (
	createType     string
	createPath     string
	createRepo     string
	createBasePath string
	createMeta     []string

	listStatus string
	listLimit  int

	updateStatus       string
	updateClaudeID     string
	updateMeta         []string
	updateMatchVersion int64
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Session management commands",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		req := map[string]interface{}{"project_type": createType}
		if createPath != "" {
			req["path"] = createPath
		}
		if createRepo != "" {
			req["repo"] = createRepo
		}
		if createBasePath != "" {
			req["base_path"] = createBasePath
		}
		if meta := parseMeta(createMeta); len(meta) > 0 {
			req["metadata"] = meta
		}

		var s SessionRow
		if err := client.Post("/v1/sessions", req, &s); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(s)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get session details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var s SessionRow
		if err := client.Get("/v1/sessions/"+args[0], &s); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(s)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		path := "/v1/sessions"
		params := url.Values{}
		if listStatus != "" {
			params.Set("status", listStatus)
		}
		if listLimit > 0 {
			params.Set("limit", strconv.Itoa(listLimit))
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		var resp SessionListResponse
		if err := client.Get(path, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Sessions)
	},
}

var sessionUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update session fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		req := map[string]interface{}{}
		if cmd.Flags().Changed("status") {
			req["status"] = updateStatus
		}
		if cmd.Flags().Changed("claude-session-id") {
			req["claude_session_id"] = updateClaudeID
		}
		if meta := parseMeta(updateMeta); len(meta) > 0 {
			req["metadata"] = meta
		}

		var headers map[string]string
		if cmd.Flags().Changed("if-match-version") {
			headers = map[string]string{"If-Match-Version": strconv.FormatInt(updateMatchVersion, 10)}
		}

		var res UpdateResult
		if err := client.Patch("/v1/sessions/"+args[0], req, &res, headers); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session %s updated to version %d.\n", res.ID, res.Version)
	},
}

var sessionHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <id>",
	Short: "Record activity on a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var res UpdateResult
		if err := client.Post("/v1/sessions/"+args[0]+"/heartbeat", nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session %s heartbeat recorded (version %d).\n", res.ID, res.Version)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session and reclaim its workspace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		if err := client.Delete("/v1/sessions/"+args[0], nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session %s deleted.\n", args[0])
	},
}

var sessionEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "List a session's tool-invocation events",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp EventListResponse
		if err := client.Get("/v1/sessions/"+args[0]+"/events", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Events)
	},
}

func parseMeta(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	meta := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			fmt.Fprintf(os.Stderr, "Error: invalid --meta entry %q (want key=value)\n", e)
			os.Exit(1)
		}
		meta[k] = v
	}
	return meta
}

func init() {
	sessionCreateCmd.Flags().StringVarP(&createType, "type", "t", "local", "Project type (local, github, worktree, e2b)")
	sessionCreateCmd.Flags().StringVar(&createPath, "path", "", "Workspace path for local sessions")
	sessionCreateCmd.Flags().StringVar(&createRepo, "repo", "", "Repository slug for github sessions (owner/name)")
	sessionCreateCmd.Flags().StringVar(&createBasePath, "base-path", "", "Existing repo path for worktree sessions")
	sessionCreateCmd.Flags().StringArrayVar(&createMeta, "meta", nil, "Metadata entry key=value (repeatable)")

	sessionListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	sessionListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum sessions to return")

	sessionUpdateCmd.Flags().StringVar(&updateStatus, "status", "", "New session status")
	sessionUpdateCmd.Flags().StringVar(&updateClaudeID, "claude-session-id", "", "Agent-side session id")
	sessionUpdateCmd.Flags().StringArrayVar(&updateMeta, "meta", nil, "Metadata entry key=value (repeatable)")
	sessionUpdateCmd.Flags().Int64Var(&updateMatchVersion, "if-match-version", 0, "Require this exact version; conflict fails instead of retrying")

	sessionCmd.AddCommand(sessionCreateCmd, sessionGetCmd, sessionListCmd, sessionUpdateCmd,
		sessionHeartbeatCmd, sessionRmCmd, sessionEventsCmd)
	rootCmd.AddCommand(sessionCmd)
}
