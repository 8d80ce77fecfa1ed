package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/callboard/pkg/domain"
)

// Board renders the line table.
type Board struct {
	render func(string) (string, error)
	now    func() time.Time
}

// NewBoard returns a Board that styles its output only when w is a terminal.
func NewBoard(w io.Writer) *Board {
	b := &Board{now: time.Now}
	if IsTerminal(w) {
		b.render = NewRenderer()
	}
	return b
}

// Markdown formats lines as a markdown table. The selected line is marked with ">".
func (b *Board) Markdown(lines []domain.Line, selected domain.LineNumber) string {
	var sb strings.Builder
	sb.WriteString("| | Line | Status | Remote | Direction | Duration | Flags |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, l := range lines {
		marker := ""
		if l.Number == selected {
			marker = ">"
		}
		name := fmt.Sprintf("%d", l.Number)
		if l.Config.Label != "" {
			name += " " + l.Config.Label
		}
		remote := "-"
		if l.Remote != nil {
			remote = l.Remote.URI
			if l.Remote.DisplayName != "" {
				remote = l.Remote.DisplayName + " (" + l.Remote.URI + ")"
			}
		}
		direction := "-"
		if l.Direction != "" {
			direction = string(l.Direction)
		}
		duration := "-"
		if l.AnsweredAt != nil {
			duration = l.Duration(b.now()).Truncate(time.Second).String()
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			marker, name, l.Status, escape(remote), direction, duration, flags(l))
	}
	return sb.String()
}

// Write renders the table to w, styled when a renderer is available.
func (b *Board) Write(w io.Writer, lines []domain.Line, selected domain.LineNumber) error {
	out := b.Markdown(lines, selected)
	if b.render != nil {
		rendered, err := b.render(out)
		if err != nil {
			return err
		}
		out = rendered
	}
	_, err := io.WriteString(w, out)
	return err
}

func flags(l domain.Line) string {
	var f []string
	if !l.Config.Enabled {
		f = append(f, "disabled")
	}
	if l.Config.AutoAnswer {
		f = append(f, "auto-answer")
	}
	if l.Muted {
		f = append(f, "muted")
	}
	if l.RemoteHeld {
		f = append(f, "remote-held")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ", ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
