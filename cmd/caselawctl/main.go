// Caselawctl is the operator CLI for a running caselawd daemon.
//
// It talks to the daemon's HTTP API:
//
//	caselawctl search "Federal Court judicial review 2024"
//	caselawctl quota
//	caselawctl approve "2024 FC 123"
//	caselawctl export "2024 FC 123" --token <token> --out decision.pdf
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	root := &cobra.Command{
		Use:   "caselawctl",
		Short: "Operator CLI for the caselawd daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8450", "caselawd base URL")

	root.AddCommand(newSearchCmd(), newQuotaCmd(), newApproveCmd(), newExportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSearchCmd() *cobra.Command {
	var court string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search case law",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"query": args[0]}
			if court != "" {
				body["court"] = court
			}
			if limit > 0 {
				body["limit"] = limit
			}

			var resp struct {
				Cases []struct {
					Citation     string    `json:"citation"`
					Title        string    `json:"title"`
					Court        string    `json:"court"`
					DecisionDate time.Time `json:"decision_date"`
					SourceID     string    `json:"source_id"`
					Score        float64   `json:"score"`
				} `json:"cases"`
				LowConfidence bool   `json:"low_confidence"`
				Partial       bool   `json:"partial"`
				TraceID       string `json:"trace_id"`
			}
			if err := postJSON("/api/v1/cases/search", body, &resp); err != nil {
				return err
			}

			if resp.LowConfidence {
				fmt.Println("query too vague: no sources consulted")
				return nil
			}
			if resp.Partial {
				fmt.Println("warning: some sources were unavailable; results may be incomplete")
			}
			for _, c := range resp.Cases {
				fmt.Printf("%-18s %-6s %s  %s (%s, score %.0f)\n",
					c.Citation, c.Court, c.DecisionDate.Format("2006-01-02"), c.Title, c.SourceID, c.Score)
			}
			fmt.Printf("%d case(s), trace %s\n", len(resp.Cases), resp.TraceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&court, "court", "", "target court code (e.g. FC)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results")
	return cmd
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show cache freshness and fallback quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				CacheSources []struct {
					SourceID   string  `json:"source_id"`
					AgeSeconds float64 `json:"age_seconds"`
					Records    int     `json:"records"`
					Refreshing bool    `json:"refreshing"`
				} `json:"cache_sources"`
				FallbackQuota *struct {
					DailyCount      int              `json:"daily_count"`
					DailyRemaining  int              `json:"daily_remaining"`
					InFlight        int              `json:"in_flight"`
					BlockedByReason map[string]int64 `json:"blocked_by_reason"`
				} `json:"fallback_quota"`
			}
			if err := getJSON("/api/v1/ops/stats", &resp); err != nil {
				return err
			}

			fmt.Println("feed cache:")
			for _, s := range resp.CacheSources {
				fmt.Printf("  %-8s age %6.0fs  %4d records  refreshing=%v\n",
					s.SourceID, s.AgeSeconds, s.Records, s.Refreshing)
			}
			if resp.FallbackQuota == nil {
				fmt.Println("fallback: disabled")
				return nil
			}
			q := resp.FallbackQuota
			fmt.Printf("fallback quota: %d used, %d remaining, %d in flight\n",
				q.DailyCount, q.DailyRemaining, q.InFlight)
			for reason, n := range q.BlockedByReason {
				fmt.Printf("  blocked %s: %d\n", reason, n)
			}
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <case-id>",
		Short: "Request an export approval token for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expires_at"`
			}
			if err := postJSON("/api/v1/cases/export/approve", map[string]any{"case_id": args[0]}, &resp); err != nil {
				return err
			}
			fmt.Printf("token: %s\nexpires: %s\n", resp.Token, resp.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var token, out string

	cmd := &cobra.Command{
		Use:   "export <case-id>",
		Short: "Export a case document using an approval token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]any{"case_id": args[0], "token": token})
			if err != nil {
				return err
			}
			resp, err := http.Post(serverAddr+"/api/v1/cases/export", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if out == "" {
				out = "export.pdf"
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s (%s)\n", len(data), out, resp.Header.Get("Content-Type"))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "approval token (from caselawctl approve)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default export.pdf)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// postJSON posts body and decodes the JSON response into out.
func postJSON(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverAddr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON fetches path and decodes the JSON response into out.
func getJSON(path string, out any) error {
	resp, err := http.Get(serverAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError converts a non-200 response into a readable error using the
// daemon's structured envelope.
func apiError(resp *http.Response) error {
	var envelope struct {
		Code         string `json:"code"`
		PolicyReason string `json:"policy_reason"`
		TraceID      string `json:"trace_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Code == "" {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if envelope.PolicyReason != "" {
		return fmt.Errorf("%s: %s (trace %s)", envelope.Code, envelope.PolicyReason, envelope.TraceID)
	}
	return fmt.Errorf("%s (trace %s)", envelope.Code, envelope.TraceID)
}
