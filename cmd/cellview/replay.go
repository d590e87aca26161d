package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/cellview"
	"pkt.systems/cellview/internal/cellrender"
	"pkt.systems/cellview/internal/richtext"
	"pkt.systems/cellview/internal/termview"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

const maxReplayLine = 16 << 20

func newReplayCmd() *cobra.Command {
	var text bool
	var width int
	var noRichText bool
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Apply a JSON-lines capture of stream messages and print the result",
		Long: "Apply a capture with one wire message per line (\"-\" reads stdin) and print\n" +
			"the resulting main output HTML, or its terminal text with --text.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openReplayInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()
			var rich cellrender.RichText
			if !noRichText {
				rich = richtext.New()
			}
			viewer := cellview.NewViewer(nil, rich)
			stats, err := replay(cmd.Context(), viewer, in)
			if err != nil {
				return err
			}
			doc := viewer.Snapshot(cmd.Context())
			out := cmd.OutOrStdout()
			if text {
				_, err = io.WriteString(out, termview.Text(doc, width))
			} else {
				_, err = fmt.Fprintln(out, doc.HTML)
			}
			if err != nil {
				return err
			}
			if stats.failed > 0 {
				return fmt.Errorf("replay: %d of %d lines failed (first at line %d)", stats.failed, stats.lines, stats.firstFailure)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "print terminal text instead of HTML")
	cmd.Flags().IntVar(&width, "width", 80, "wrap width for --text")
	cmd.Flags().BoolVar(&noRichText, "no-richtext", false, "leave prose math untypeset")
	return cmd
}

func openReplayInput(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

type replayStats struct {
	lines        int
	applied      int
	failed       int
	firstFailure int
}

// replay applies every non-blank line of in. Lines that do not decode or
// that the viewer rejects are logged and counted; later lines still apply.
func replay(ctx context.Context, viewer *cellview.Viewer, in io.Reader) (replayStats, error) {
	logger := pslog.Ctx(ctx)
	var stats replayStats
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	lineNo := 0
	fail := func(err error) {
		stats.failed++
		if stats.firstFailure == 0 {
			stats.firstFailure = lineNo
		}
		logger.Warn("replay line failed", "line", lineNo, "error", err)
	}
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.lines++
		msg, err := schema.DecodeMessage(line)
		if err != nil {
			fail(err)
			continue
		}
		report, err := viewer.Apply(ctx, msg)
		if err != nil {
			fail(err)
			continue
		}
		stats.applied++
		logger.Debug("replay line applied", "line", lineNo, "created", len(report.Created))
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read capture: %w", err)
	}
	logger.Info("replay done", "lines", stats.lines, "applied", stats.applied, "failed", stats.failed)
	return stats, nil
}
