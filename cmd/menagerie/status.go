package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		// List all jobs
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	// Get specific job status
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		if cfg, ok := job["config"].(map[string]interface{}); ok {
			fmt.Printf("  Mode: %s\n", cfg["mode"])
			fmt.Printf("  Objective: %v\n", cfg["objective"])
			fmt.Printf("  Cycles: %v\n", cfg["cycles"])
		}
		if cycles, ok := job["cycles"].(float64); ok && cycles > 0 {
			fmt.Printf("  Completed: %.0f cycle(s), best %v\n", cycles, job["bestFitness"])
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	if cfg, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println("Configuration:")
		fmt.Printf("  Mode: %s\n", cfg["mode"])
		fmt.Printf("  Objective: %v\n", cfg["objective"])
		fmt.Printf("  Cycles: %v\n", cfg["cycles"])
		fmt.Printf("  Generations/cycle: %v\n", cfg["genPerCycle"])
		fmt.Printf("  Seed: %v\n", cfg["seed"])
		fmt.Println()
	}

	fmt.Println("Progress:")
	if cycles, ok := status["cycles"].(float64); ok {
		fmt.Printf("  Completed cycles: %.0f\n", cycles)
	}
	if best, ok := status["bestFitness"].(float64); ok {
		fmt.Printf("  Best fitness: %g\n", best)
	}

	if elapsed, ok := status["elapsed"].(float64); ok {
		fmt.Printf("  Elapsed: %s\n", time.Duration(elapsed*float64(time.Second)).Round(time.Millisecond))
	}

	if cps, ok := status["cps"].(float64); ok && cps > 0 {
		fmt.Printf("  Throughput: %.2f cycles/sec\n", cps)
	}

	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("\nError: %s\n", errMsg)
	}

	return nil
}
