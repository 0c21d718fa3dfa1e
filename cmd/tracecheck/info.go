package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracecheck/tracecheck/internal/model"
	"github.com/tracecheck/tracecheck/pkg/config"
	"github.com/tracecheck/tracecheck/pkg/scan"
)

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	ctx, cancel := signalContext()
	defer cancel()

	logPath, cleanup, err := resolveInput(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	catalog := buildCatalog(cfg)

	sc, err := scan.Open(logPath)
	if err != nil {
		return err
	}
	defer sc.Close()

	lines := make(chan model.Line, 1024)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- sc.Run(ctx, lines)
		close(lines)
	}()

	counts := make(map[model.Kind]int64)
	var matched, malformed int64

	for line := range lines {
		ev, ok, err := catalog.Parse(line)
		if err != nil {
			malformed++
			continue
		}
		if !ok {
			continue
		}
		matched++
		counts[ev.Kind]++
	}

	if err := <-scanErr; err != nil {
		return err
	}

	fmt.Printf("File:      %s\n", logPath)
	fmt.Printf("Size:      %s\n", humanSize(sc.Size()))
	if strings.HasSuffix(logPath, ".gz") {
		fmt.Printf("Encoding:  gzip\n")
	}
	fmt.Printf("Lines:     %d\n", sc.Lines())
	fmt.Printf("Events:    %d matched", matched)
	if malformed > 0 {
		fmt.Printf(", %d malformed", malformed)
	}
	fmt.Println()

	if len(counts) > 0 {
		fmt.Println()
		kinds := make([]model.Kind, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

		for _, k := range kinds {
			fmt.Printf("  %-20s %d\n", k.String(), counts[k])
		}
	}

	return nil
}

// humanSize formats a byte size in human-readable form.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
