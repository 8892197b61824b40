package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/attendee"
	"rollcall/internal/bootstrap"
	"rollcall/internal/domain"
	"rollcall/internal/export"
	"rollcall/internal/ports"
	"rollcall/internal/usecase"
)

func newCorrectCommand(root *rootOptions) *cobra.Command {
	var (
		out    string
		layout string
	)
	cmd := &cobra.Command{
		Use:   "correct FILE",
		Short: "Correct a file of raw utterances and export CSV",
		Long: `Reads one raw utterance per line (use - for stdin), builds the attendee
list the same way live capture does, runs the correction model over it
and writes the CSV export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap.Build(discardSink{}, root.buildOptions()...)
			if err != nil {
				return err
			}

			lines, err := readUtterances(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			attendees := buildAttendees(services.Normalizer, services.Logger, lines, time.Now)
			if len(attendees) == 0 {
				return fmt.Errorf("%s contains no utterances", args[0])
			}

			result := services.Corrector.Correct(cmd.Context(), attendees)
			if result.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "correction %s: %v\n", result.Outcome, result.Err)
			}

			if layout == "" {
				layout = services.Config.Export.Layout
			}
			parsed, err := export.ParseLayout(layout)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(services.Config.Export.Directory, export.Filename(time.Now()))
			}
			if err := export.WriteFile(out, parsed, result.Attendees); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printAttendees(w, result.Attendees)
			fmt.Fprintf(w, "correction: %s\nexported %d attendees to %s\n", result.Outcome, len(result.Attendees), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV destination (default: dated file in the export directory)")
	cmd.Flags().StringVar(&layout, "layout", "", "CSV layout: contact or raw (default from config)")
	return cmd
}

func readUtterances(stdin io.Reader, name string) ([]string, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// batchSource labels entries read from a file in the captured metric.
const batchSource = "file"

// buildAttendees records lines through the same recorder live capture uses.
func buildAttendees(normalizer ports.Normalizer, logger *slog.Logger, lines []string, now func() time.Time) []domain.Attendee {
	store := attendee.NewStore()
	recorder := usecase.NewRecorder(normalizer, store, logger, nil)
	for _, raw := range lines {
		recorder.Record(raw, batchSource, now())
	}
	return store.Snapshot()
}

func printAttendees(w io.Writer, attendees []domain.Attendee) {
	for i, a := range attendees {
		if a.FormattedPhone != "" {
			fmt.Fprintf(w, "%3d. %s  %s\n", i+1, a.FormattedName, a.FormattedPhone)
			continue
		}
		fmt.Fprintf(w, "%3d. %s\n", i+1, a.FormattedName)
	}
}

type discardSink struct{}

func (discardSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (discardSink) PartialTranscript(string)                                          {}
func (discardSink) AttendeesChanged([]domain.Attendee)                                {}
func (discardSink) SessionError(domain.ErrorCode, string)                             {}
