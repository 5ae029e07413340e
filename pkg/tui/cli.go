// Package tui renders botscope command output.
// Simple, streaming output: styled lines and a download progress bar.
package tui

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/botscope/botscope/pkg/validate"
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
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the command banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  BOTSCOPE")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Tweet/user dataset provisioning and validation"))
	fmt.Fprintln(w)
}

// PrintPaths prints resolved dataset files in sorted order.
func PrintPaths(w io.Writer, env string, paths map[string]string) {
	fmt.Fprintln(w, accentStyle.Render("▸ DATASET")+" "+mutedStyle.Render("("+env+")"))
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-12s", name)), codeStyle.Render(paths[name]))
	}
}

// PrintReport prints per-column validation results for each table.
func PrintReport(w io.Writer, reports []validate.Report) {
	for _, r := range reports {
		fmt.Fprintln(w)
		status := successStyle.Render("✓")
		if !r.Valid() {
			status = accentStyle.Render("✗")
		}
		fmt.Fprintf(w, "%s %s %s\n", status, titleStyle.Render(r.Table),
			mutedStyle.Render(fmt.Sprintf("(%s rows)", formatNumber(r.Rows))))
		fmt.Fprintln(w, mutedStyle.Render(rule))

		for _, c := range r.Columns {
			count := successStyle.Render("0")
			if c.Invalid > 0 {
				count = accentStyle.Render(fmt.Sprintf("%d (%.2f%%)", c.Invalid, c.InvalidPct()))
			}
			fmt.Fprintf(w, "  %s %s %s\n",
				titleStyle.Render(fmt.Sprintf("%-16s", c.Name)),
				mutedStyle.Render(fmt.Sprintf("%-18s", c.Kind)),
				count)
		}
		for _, name := range r.Missing {
			fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(fmt.Sprintf("%-16s", name)), accentStyle.Render("missing column"))
		}
	}
	fmt.Fprintln(w)
}

// ArtifactInfo describes one cached artifact for listing.
type ArtifactInfo struct {
	Name string
	Rows int64
	Cols int64
	Size int64
}

// PrintArtifacts lists the artifacts of a step.
func PrintArtifacts(w io.Writer, step string, artifacts []ArtifactInfo) {
	fmt.Fprintln(w, accentStyle.Render("▸ STEP")+" "+titleStyle.Render(step))
	for _, a := range artifacts {
		fmt.Fprintf(w, "  %s %s %s\n",
			titleStyle.Render(fmt.Sprintf("%-24s", a.Name)),
			mutedStyle.Render(fmt.Sprintf("%s rows × %d cols", formatNumber(a.Rows), a.Cols)),
			mutedStyle.Render(formatBytes(a.Size)))
	}
}

// PrintTable prints query results as tab-separated rows under a header.
func PrintTable(w io.Writer, columns []string, rows [][]any) {
	for i, c := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, titleStyle.Render(c))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			if v == nil {
				fmt.Fprint(w, mutedStyle.Render("NULL"))
				continue
			}
			fmt.Fprint(w, v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
}

// PrintDone prints a completion line with elapsed time.
func PrintDone(w io.Writer, what string, elapsed time.Duration) {
	fmt.Fprintf(w, "%s %s %s\n", successStyle.Render("✓"), what, mutedStyle.Render(formatDuration(elapsed)))
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

// showDownload creates a byte progress bar writing to w. A non-positive
// total renders a spinner, which is what servers without Content-Length get.
func showDownload(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
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
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionClearOnFinish(),
	)
}

// DownloadProgress returns a progress factory suitable for fetch.Options.
func DownloadProgress(w io.Writer) func(contentLength int64) io.Writer {
	return func(contentLength int64) io.Writer {
		return showDownload(w, contentLength, "  downloading")
	}
}
