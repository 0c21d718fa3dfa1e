package report

import (
	"encoding/json"
	"io"

	"github.com/tracecheck/tracecheck/pkg/checker"
)

// WriteJSON writes the machine-readable form of a run report.
func WriteJSON(report *checker.RunReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
