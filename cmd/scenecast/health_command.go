package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the running daemon's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			url := fmt.Sprintf("http://%s/health", cfg.Server.Bind)
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", url, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}

			var report struct {
				Status             string  `json:"status"`
				Version            string  `json:"version"`
				Uptime             float64 `json:"uptime"`
				DatabaseConnected  bool    `json:"database_connected"`
				RedisConnected     bool    `json:"redis_connected"`
				DiskSpaceAvailable uint64  `json:"disk_space_available"`
				ActiveJobs         int     `json:"active_jobs"`
			}
			if err := json.Unmarshal(body, &report); err != nil {
				return fmt.Errorf("parse health response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:     %s\n", report.Status)
			fmt.Fprintf(out, "Version:    %s\n", report.Version)
			fmt.Fprintf(out, "Uptime:     %s\n", (time.Duration(report.Uptime) * time.Second).Round(time.Second))
			fmt.Fprintf(out, "Database:   connected=%t\n", report.DatabaseConnected)
			fmt.Fprintf(out, "Redis:      connected=%t\n", report.RedisConnected)
			fmt.Fprintf(out, "Disk free:  %.1f GiB\n", float64(report.DiskSpaceAvailable)/(1<<30))
			fmt.Fprintf(out, "Active:     %d jobs\n", report.ActiveJobs)
			return nil
		},
	}
}
