package bench

import (
	"fmt"
	"strings"
)

const (
	columnPadding  = "  "
	minColumnWidth = 14

	sentinelTimeout     = "TIMEOUT"
	sentinelCrash       = "CRASH"
	sentinelBuildFailed = "BUILD-FAIL"
	sentinelSkipped     = "SKIP"
	sentinelAbsent      = "-"
)

// Render turns the result matrix into the comparison report: one block per
// mode, rows grouped by benchmark file with one row per backend, revision
// columns in resolution order. Rendering is pure, so the same matrix always
// yields byte-identical text no matter how its cells were scheduled.
func Render(m *ResultMatrix, revs []Revision, kinds []RuntimeKind, files []BenchmarkFile) string {
	var b strings.Builder
	first := true
	for _, mode := range Modes {
		var modeKinds []RuntimeKind
		for _, kind := range kinds {
			if kind.Mode == mode {
				modeKinds = append(modeKinds, kind)
			}
		}
		if len(modeKinds) == 0 {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		first = false
		renderBlock(&b, m, mode, modeKinds, revs, files)
	}
	return b.String()
}

func renderBlock(b *strings.Builder, m *ResultMatrix, mode Mode, kinds []RuntimeKind, revs []Revision, files []BenchmarkFile) {
	header := []string{"file", "runtime"}
	for _, rev := range revs {
		header = append(header, rev.Name)
	}

	// Group rows by file; the file name is shown on the first row only.
	var groups [][][]string
	for _, file := range files {
		var group [][]string
		for i, kind := range kinds {
			name := ""
			if i == 0 {
				name = file.Name
			}
			row := []string{name, kind.Backend}
			for _, rev := range revs {
				res, ok := m.Get(CellKey{File: file.Name, Mode: mode, Backend: kind.Backend, RevisionID: rev.ID})
				row = append(row, cellText(res, ok))
			}
			group = append(group, row)
		}
		groups = append(groups, group)
	}

	widths := columnWidths(header, groups)
	total := len(columnPadding) * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}

	fmt.Fprintf(b, "%s\n%s\n\n", mode, strings.Repeat("=", len(mode)))
	b.WriteString(formatRow(header, widths, false))
	b.WriteString(strings.Repeat("=", total) + "\n")
	for _, group := range groups {
		for _, row := range group {
			b.WriteString(formatRow(row, widths, true))
		}
		b.WriteString(strings.Repeat("-", total) + "\n")
	}
}

// formatRow pads the first two columns to the left and, for data rows, value
// columns to the right. Trailing whitespace is trimmed so the output is
// stable under any column width.
func formatRow(cols []string, widths []int, alignValues bool) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		if alignValues && i >= 2 {
			parts[i] = fmt.Sprintf("%*s", widths[i], col)
		} else {
			parts[i] = fmt.Sprintf("%-*s", widths[i], col)
		}
	}
	return strings.TrimRight(strings.Join(parts, columnPadding), " ") + "\n"
}

func columnWidths(header []string, groups [][][]string) []int {
	widths := make([]int, len(header))
	for i, col := range header {
		widths[i] = minColumnWidth
		if len(col) > widths[i] {
			widths[i] = len(col)
		}
	}
	for _, group := range groups {
		for _, row := range group {
			for i, col := range row {
				if len(col) > widths[i] {
					widths[i] = len(col)
				}
			}
		}
	}
	return widths
}

func cellText(res ExecutionResult, ok bool) string {
	if !ok {
		return sentinelAbsent
	}
	switch res.Outcome {
	case OutcomeSuccess:
		if res.Timing != "" {
			return res.Timing
		}
		return formatElapsed(res.Elapsed)
	case OutcomeTimeout:
		return sentinelTimeout
	case OutcomeCrashed:
		return sentinelCrash
	case OutcomeBuildFailed:
		return sentinelBuildFailed
	default:
		return sentinelSkipped
	}
}
