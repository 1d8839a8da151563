package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display: the time of day for
// today, the date otherwise.
func formatTime(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04:05")
	}

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

var endVerbs = map[driveops.Op]string{
	driveops.OpCreate: driveops.StepCreated,
	driveops.OpUpload: driveops.StepUploaded,
	driveops.OpMove:   driveops.StepMoved,
	driveops.OpRemove: driveops.StepRemoved,
	driveops.OpIgnore: "ignored",
}

// recordVerb is the one-word outcome shown for a record.
func recordVerb(phase driveops.Phase, op driveops.Op, step string) string {
	switch phase {
	case driveops.PhaseStart:
		return "started"
	case driveops.PhaseProgress:
		return step
	case driveops.PhaseCancel:
		return "canceled"
	case driveops.PhaseError:
		return "failed"
	}

	if step == driveops.StepAbsent {
		return "removed"
	}

	if step != "" {
		return step
	}

	if verb, ok := endVerbs[op]; ok {
		return verb
	}

	return string(op)
}

// recordSubject names the item a record is about, with its source when the
// record describes a move or a copy.
func recordSubject(op driveops.Op, name, from string) string {
	if from == "" {
		return name
	}

	if op == driveops.OpMove {
		return from + " -> " + name
	}

	return name + " (copy of " + from + ")"
}

// formatRecord renders rec as one console line.
func formatRecord(rec driveops.ActionRecord) string {
	line := fmt.Sprintf("%-9s %-6s %s",
		recordVerb(rec.Phase, rec.Op, rec.Step), rec.Type, recordSubject(rec.Op, rec.Name, rec.From))

	if rec.Step == driveops.StepAbsent {
		line += " (already absent)"
	}

	if rec.Err != nil {
		line += ": " + rec.Err.Error()
	}

	return line
}

const progressBarWidth = 20

// formatProgress renders a chunk position as a progress line.
func formatProgress(name string, index, total int, size int64) string {
	if total <= 0 {
		return name
	}

	filled := progressBarWidth * index / total

	return fmt.Sprintf("%s [%s%s] %d/%d chunks of %s",
		name,
		strings.Repeat("=", filled), strings.Repeat(" ", progressBarWidth-filled),
		index, total, formatSize(size))
}
