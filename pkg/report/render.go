// Package report renders verification results for terminals and files.
// Simple, streaming, no complex TUI - just clean styled output.
package report

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/tracecheck/tracecheck/pkg/checker"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// Print renders a run report to stdout.
func Print(report *checker.RunReport) {
	fmt.Println()
	if report.Passed() {
		fmt.Println(successStyle.Render("  ✓ ALL CHECKS PASSED"))
	} else {
		fmt.Println(accentStyle.Render(fmt.Sprintf("  ✗ %d VIOLATION(S)", report.ViolationCount())))
	}
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Log:"), titleStyle.Render(report.Log))
	fmt.Printf("  %s %s lines, %s %s\n",
		mutedStyle.Render("Scanned:"),
		titleStyle.Render(formatNumber(report.LinesScanned)),
		formatBytes(report.BytesRead),
		mutedStyle.Render(fmt.Sprintf("in %s", formatDuration(report.Duration))))
	fmt.Println()

	for _, res := range report.Results {
		printResult(res)
	}
}

func printResult(res checker.Result) {
	status := successStyle.Render("pass")
	if !res.Passed {
		status = accentStyle.Render("FAIL")
		if res.Aborted {
			status = accentStyle.Render("FAIL (aborted)")
		}
	}

	fmt.Printf("  %s %s %s\n",
		status,
		titleStyle.Render(res.Checker),
		mutedStyle.Render(fmt.Sprintf("(%d events)", res.EventsMatched)))

	for _, v := range res.Violations {
		fmt.Printf("       %s %s\n", accentStyle.Render("▸"), v.Message())
		for _, line := range v.Evidence {
			fmt.Printf("         %s\n", mutedStyle.Render(fmt.Sprintf("%d: %s", line.Number, line.Text)))
		}
	}

	if res.Registry != nil && len(res.Registry) > 0 {
		fmt.Printf("       %s\n", mutedStyle.Render(fmt.Sprintf("%d kernel(s) still cached at end of log", len(res.Registry))))
	}
}

// ClearLine clears the current line.
func ClearLine() {
	fmt.Print("\r\033[K")
}

// PrintProgress prints an in-place scan progress update.
func PrintProgress(lines, bytes int64) {
	fmt.Printf("\r  %s %s lines %s",
		accentStyle.Render("⟳"),
		titleStyle.Render(formatNumber(lines)),
		mutedStyle.Render(fmt.Sprintf("(%s)", formatBytes(bytes))))
}

// ShowProgress creates a progress bar sized to the log file.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
