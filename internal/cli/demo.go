package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/callboard/internal/presentation/tui"
	"github.com/aretw0/callboard/pkg/domain"
)

// DemoStep is one scripted action of the status demo.
type DemoStep struct {
	Title string
	Run   func(ctx context.Context, a *App) error
}

// DemoScript walks through the everyday multi-line flow on lines 1 and 2.
func DemoScript() []DemoStep {
	return []DemoStep{
		{"Dial sip:alice@example.com", func(ctx context.Context, a *App) error {
			_, err := a.Engine.MakeCall(ctx, "sip:alice@example.com", domain.CallOptions{Line: 1, Audio: true})
			return err
		}},
		{"Inbound call from Bob", func(ctx context.Context, a *App) error {
			a.Gateway.SimulateIncoming("sip:bob@example.com", "Bob")
			if l, _ := a.Engine.GetLineState(2); l.Status != domain.StatusRinging {
				return fmt.Errorf("expected line 2 to ring, it is %s", l.Status)
			}
			return nil
		}},
		{"Answer line 2", func(ctx context.Context, a *App) error {
			return a.Engine.AnswerCall(ctx, 2, domain.AnswerOptions{Audio: true})
		}},
		{"Swap lines 1 and 2", func(ctx context.Context, a *App) error {
			return a.Engine.SwapLines(ctx, 1, 2)
		}},
		{"Send DTMF 1# on line 1", func(ctx context.Context, a *App) error {
			return a.Engine.SendDTMF(ctx, 1, "1#")
		}},
		{"Transfer Bob to Alice", func(ctx context.Context, a *App) error {
			return a.Engine.TransferCall(ctx, domain.TransferRequest{
				FromLine: 2,
				Target:   domain.ToLine(1),
				Attended: true,
			})
		}},
	}
}

// RunDemo plays the script, printing the line board after each step and the call log at the end.
func RunDemo(ctx context.Context, a *App, w io.Writer, board *tui.Board) error {
	if a.Engine.LineCount() < 2 {
		return errors.New("the status demo needs at least 2 lines")
	}
	if err := a.Engine.ResetAllLines(ctx); err != nil {
		return err
	}
	// The script answers by hand.
	for _, n := range []domain.LineNumber{1, 2} {
		off, on := false, true
		if _, err := a.Engine.ConfigureLine(n, domain.LineConfigPatch{AutoAnswer: &off, Enabled: &on}); err != nil {
			return err
		}
	}

	for i, step := range DemoScript() {
		fmt.Fprintf(w, "\n%d. %s\n\n", i+1, step.Title)
		if err := step.Run(ctx, a); err != nil {
			return fmt.Errorf("step %q: %w", step.Title, err)
		}
		selected, _ := a.Engine.SelectedLine()
		if err := board.Write(w, a.Engine.Lines(), selected); err != nil {
			return err
		}
	}

	records, err := a.Engine.RecentCalls(ctx, 10)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nRecent calls:\n")
	for _, r := range records {
		fmt.Fprintf(w, "  line %d  %-8s  %-24s  %s  %ds\n", r.Line, r.Direction, r.RemoteURI, r.Cause, r.DurationSeconds)
	}
	return nil
}
