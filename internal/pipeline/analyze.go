package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/probe"
	"github.com/backmassage/pixmaster/internal/term"
)

// ImageRow holds the probed per-file data for the analysis table.
type ImageRow struct {
	Name       string
	Format     string
	Width      int
	Height     int
	Pages      int
	Size       int64
	BytesPerMP float64 // 0 when dimensions are unknown
	Flag       string  // "", "outlier" or "extreme"
}

// Analysis is the result of Analyze.
type Analysis struct {
	Rows     []ImageRow
	Skipped  int
	Density  iqrBounds
	Outliers int
	Extremes int
}

// Analyze probes each file and flags unusual storage density (bytes per
// megapixel) with IQR outlier detection. progress, when non-nil, gets an
// inline counter.
func Analyze(ctx context.Context, files []string, log *logging.Logger, progress io.Writer) *Analysis {
	a := &Analysis{}
	var densities []float64

	for i, path := range files {
		if ctx.Err() != nil {
			clearProgress(progress)
			log.Warn("Interrupted")
			break
		}
		printProgress(progress, i+1, len(files), a.Skipped, filepath.Base(path))

		pr, err := probe.Probe(path)
		if err != nil {
			a.Skipped++
			clearProgress(progress)
			log.Warn("Skip (probe failed): %s: %v", filepath.Base(path), err)
			continue
		}

		row := ImageRow{
			Name:   filepath.Base(path),
			Format: pr.Format,
			Width:  pr.Width,
			Height: pr.Height,
			Pages:  pr.Pages,
			Size:   pr.Size,
		}
		if mp := pr.Megapixels(); mp > 0 {
			row.BytesPerMP = float64(pr.Size) / mp
			densities = append(densities, row.BytesPerMP)
		}
		a.Rows = append(a.Rows, row)
	}
	clearProgress(progress)

	a.Density = computeStats(densities)
	for i := range a.Rows {
		a.Rows[i].Flag = a.Density.classify(a.Rows[i].BytesPerMP)
		switch a.Rows[i].Flag {
		case "extreme":
			a.Extremes++
		case "outlier":
			a.Outliers++
		}
	}
	return a
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
func (b *iqrBounds) classify(v float64) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v < b.extremeLo || v > b.extremeHi {
		return "extreme"
	}
	if v < b.outlierLo || v > b.outlierHi {
		return "outlier"
	}
	return ""
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// PrintAnalysis writes the table and a summary to w.
func PrintAnalysis(w io.Writer, a *Analysis) {
	nameW := len("File")
	fmtW := len("Format")
	dimW := len("Dimensions")
	sizeW := len("Size")
	denW := len("Per MP")

	for _, r := range a.Rows {
		nameW = max(nameW, len(r.Name))
		fmtW = max(fmtW, len(r.Format))
		dimW = max(dimW, len(dimensions(r)))
		sizeW = max(sizeW, len(display.FormatBytes(r.Size)))
		denW = max(denW, len(density(r)))
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %-*s",
		nameW, "File", fmtW, "Format", dimW, "Dimensions", sizeW, "Size", denW, "Per MP")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))

	for _, r := range a.Rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}
		// Pad before coloring so escape bytes do not count as width.
		fmt.Fprintf(w, "  %-*s  %-*s  %-*s  %-*s  %s  %s\n",
			nameW, name,
			fmtW, r.Format,
			dimW, dimensions(r),
			sizeW, display.FormatBytes(r.Size),
			colorPad(density(r), denW, r.Flag),
			formatFlag(r.Flag),
		)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Analyzed %d file(s)", len(a.Rows))
	if a.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", a.Skipped)
	}
	fmt.Fprintln(w)
	if a.Density.valid {
		fmt.Fprintf(w, "  Density IQR: %s – %s per MP\n",
			display.FormatBytes(int64(a.Density.q1)), display.FormatBytes(int64(a.Density.q3)))
	}
	switch {
	case a.Outliers == 0 && a.Extremes == 0:
		fmt.Fprintln(w, "  No outliers detected")
	default:
		fmt.Fprintf(w, "  %d outlier(s) [*], %d extreme [!]\n", a.Outliers, a.Extremes)
	}
}

func dimensions(r ImageRow) string {
	switch {
	case r.Width > 0:
		return fmt.Sprintf("%dx%d", r.Width, r.Height)
	case r.Pages > 1:
		return fmt.Sprintf("%d pages", r.Pages)
	}
	return "n/a"
}

func density(r ImageRow) string {
	if r.BytesPerMP <= 0 {
		return "n/a"
	}
	return display.FormatBytes(int64(r.BytesPerMP))
}

func flagColor(flag string) *color.Color {
	switch flag {
	case "extreme":
		return term.Red
	case "outlier":
		return term.Yellow
	}
	return nil
}

func formatFlag(flag string) string {
	c := flagColor(flag)
	if c == nil {
		return ""
	}
	if flag == "extreme" {
		return c.Sprint("[!]")
	}
	return c.Sprint("[*]")
}

func colorPad(s string, width int, flag string) string {
	padded := fmt.Sprintf("%-*s", width, s)
	if c := flagColor(flag); c != nil {
		return c.Sprint(padded)
	}
	return padded
}

// printProgress shows a live probe counter as an inline \r-overwritten
// line. A nil writer disables it.
func printProgress(w io.Writer, current, total, skipped int, name string) {
	if w == nil {
		return
	}
	pct := current * 100 / total
	status := fmt.Sprintf("  Probing [%d/%d] %d%% ", current, total, pct)
	if skipped > 0 {
		status += fmt.Sprintf("(%d skipped) ", skipped)
	}
	if len(name) > 40 {
		name = name[:39] + "…"
	}
	status += name
	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(w, "\r%s", status)
}

func clearProgress(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", 80))
}
