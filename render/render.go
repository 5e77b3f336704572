// Package render draws run state to a terminal. It implements the
// weave.Renderer contract: purely observational, fed read-only snapshots
// after every state transition.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/everydev1618/weave"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))

	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	executingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))

	conditionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Italic(true)
)

func statusStyle(s weave.NodeStatus) lipgloss.Style {
	switch s {
	case weave.StatusExecuting:
		return executingStyle
	case weave.StatusCompleted:
		return completedStyle
	case weave.StatusFailed:
		return failedStyle
	case weave.StatusSkipped:
		return skippedStyle
	default:
		return pendingStyle
	}
}

func statusGlyph(s weave.NodeStatus) string {
	switch s {
	case weave.StatusExecuting:
		return "…"
	case weave.StatusCompleted:
		return "✓"
	case weave.StatusFailed:
		return "✗"
	case weave.StatusSkipped:
		return "↷"
	default:
		return "·"
	}
}

// Console renders each snapshot as a status board appended to out. It is
// log-style rather than a full-screen TUI, so it composes with slog output
// and with piped runs.
type Console struct {
	out io.Writer
}

// NewConsole returns a renderer writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Render implements weave.Renderer.
func (c *Console) Render(view weave.View) {
	fmt.Fprint(c.out, Board(view))
}

// Board formats one snapshot as a node-per-line status board.
func Board(view weave.View) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("run "+shortID(view.RunID)) + "\n")
	for _, n := range view.Graph.Nodes {
		style := statusStyle(n.Status)
		line := fmt.Sprintf("  %s #%d %s", statusGlyph(n.Status), n.ID, n.DisplayName())
		if out, ok := view.Outputs[n.ID]; ok && n.Status == weave.StatusFailed && out.Error != "" {
			line += " — " + firstLine(out.Error)
		}
		b.WriteString(style.Render(line))
		if ann := edgeAnnotations(view.Graph, n.ID); ann != "" {
			b.WriteString(" " + conditionStyle.Render(ann))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// edgeAnnotations lists the conditional edges leaving a node, so the board
// shows where a run may branch.
func edgeAnnotations(g *weave.Graph, id int) string {
	var parts []string
	for _, e := range g.Outgoing(id) {
		if e.Condition != "" {
			parts = append(parts, fmt.Sprintf("(%s)~> #%d", e.Condition, e.To))
		}
	}
	return strings.Join(parts, " ")
}

// Summary formats the end-of-run report: status tallies plus per-node
// durations, slowest first.
func Summary(view weave.View, elapsed time.Duration) string {
	counts := make(map[weave.NodeStatus]int)
	for _, n := range view.Graph.Nodes {
		counts[n.Status]++
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("run summary") + "\n")
	b.WriteString(fmt.Sprintf("  total %s", elapsed.Round(time.Millisecond)))
	for _, s := range []weave.NodeStatus{
		weave.StatusCompleted, weave.StatusFailed, weave.StatusSkipped, weave.StatusPending,
	} {
		if counts[s] > 0 {
			b.WriteString(fmt.Sprintf("  %s %d", s, counts[s]))
		}
	}
	b.WriteString("\n")

	type timing struct {
		id  int
		dur time.Duration
	}
	var timings []timing
	for id, out := range view.Outputs {
		if out.Duration > 0 {
			timings = append(timings, timing{id, out.Duration})
		}
	}
	sort.Slice(timings, func(i, j int) bool {
		if timings[i].dur != timings[j].dur {
			return timings[i].dur > timings[j].dur
		}
		return timings[i].id < timings[j].id
	})
	for _, t := range timings {
		n := view.Graph.Node(t.id)
		if n == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("  #%d %-20s %s\n", t.id, n.DisplayName(), t.dur.Round(time.Millisecond)))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
