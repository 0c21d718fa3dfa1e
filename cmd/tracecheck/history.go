package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracecheck/tracecheck/pkg/config"
	"github.com/tracecheck/tracecheck/pkg/store"
)

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	db, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RecentRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		fmt.Println("Run 'tracecheck check <log> --store' to record one.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-35s %10s %10s %s\n",
		"Run", "Started", "Log", "Lines", "Duration", "Result")
	fmt.Println(strings.Repeat("-", 100))

	for _, r := range runs {
		result := "passed"
		if !r.Passed {
			result = fmt.Sprintf("FAILED (%d violations)", r.Violations)
		}
		fmt.Printf("%-10s %-20s %-35s %10d %10s %s\n",
			shortID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			truncatePath(r.Log, 35),
			r.Lines,
			r.Duration.Round(time.Millisecond),
			result)
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "..." + path[len(path)-max+3:]
}
