package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/sokinpui/aiwriter/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
)

// Output receives all diagnostic messages. Stdout is reserved for the
// summary line.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// --- Summaries ---

// SummaryLine is the one-line outcome written to stdout.
func SummaryLine(s model.Summary) string {
	return fmt.Sprintf("Applied changes to %d file(s).", s.Applied())
}

// PrintUpdateSummary lists what happened to each proposed change.
func PrintUpdateSummary(s model.Summary) {
	if s.DecodeFailed {
		PrintRawDump(s.Raw)
		return
	}
	if s.Message != "" {
		Info(s.Message)
	}

	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Rejected) == 0 && s.Malformed == 0 {
		return
	}

	Header("\n--- Update Summary ---")
	if len(s.Modified) > 0 {
		Success("Modified %d file(s):", len(s.Modified))
		for _, f := range s.Modified {
			Path("- %s", f)
		}
	}
	if len(s.Created) > 0 {
		Success("Created %d new file(s):", len(s.Created))
		for _, f := range s.Created {
			Path("- %s", f)
		}
	}
	if len(s.Rejected) > 0 {
		Warning("Rejected %d change(s):", len(s.Rejected))
		for _, r := range s.Rejected {
			Path("- %s (%s)", r.Path, r.Reason)
		}
	}
	if s.Malformed > 0 {
		Warning("Skipped %d malformed change entries.", s.Malformed)
	}
}

// PrintRawDump shows unparseable model output for diagnosis.
func PrintRawDump(raw string) {
	Error("Failed to parse model output as JSON. Raw output:")
	fmt.Fprintln(Output, raw)
}
