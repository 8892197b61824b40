package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/bootstrap"
	"rollcall/internal/correct"
	"rollcall/internal/domain"
	"rollcall/internal/observe"
	"rollcall/internal/usecase"
	"rollcall/internal/version"
)

const captureHelp = `commands:
  <enter>  start or stop capture
  f        finish and correct the list
  c        continue capturing after review
  e        export CSV
  l        print the list
  d N      delete entry N
  r        reset the session
  q        quit`

// session is the part of the controller the interactive loop drives.
type session interface {
	ToggleCapture(ctx context.Context) error
	Finish(ctx context.Context) (correct.Outcome, error)
	ContinueCapture() error
	Export(ctx context.Context, path string) (string, error)
	Remove(id string) error
	Reset()
	Status() domain.Status
	Attendees() []domain.Attendee
}

func newCaptureCommand(root *rootOptions) *cobra.Command {
	var (
		out         string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run an interactive capture session in the terminal",
		Long:  "Run an interactive capture session in the terminal.\n\n" + captureHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var provider *observe.Provider
			var extra []bootstrap.Option
			if metricsAddr != "" {
				p, err := observe.InitProvider(version.Version)
				if err != nil {
					return fmt.Errorf("init metrics: %w", err)
				}
				provider = p
				extra = append(extra, bootstrap.WithMetrics(p.Metrics))
			}

			sink := &printSink{w: cmd.OutOrStdout()}
			services, err := bootstrap.Build(sink, root.buildOptions(extra...)...)
			if err != nil {
				return err
			}
			if out == "" {
				out = services.Config.Export.Directory
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			if provider != nil {
				mux := http.NewServeMux()
				mux.Handle("/metrics", provider.Handler)
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
					return provider.Shutdown(shutdownCtx)
				})
				services.Logger.Info("serving metrics", "addr", metricsAddr)
			}

			g.Go(func() error {
				defer cancel()
				defer services.Controller.Reset()
				fmt.Fprintln(cmd.OutOrStdout(), captureHelp)
				return runInteractive(gctx, services.Controller, cmd.InOrStdin(), cmd.OutOrStdout(), out)
			})

			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV destination file or directory (default: export directory from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	return cmd
}

// runInteractive reads commands until q, EOF or ctx is done.
func runInteractive(ctx context.Context, s session, in io.Reader, w io.Writer, out string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(ctx, s, line, w, out); quit {
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, s session, line string, w io.Writer, out string) (quit bool) {
	fields := strings.Fields(line)
	verb := ""
	if len(fields) > 0 {
		verb = strings.ToLower(fields[0])
	}

	var err error
	switch verb {
	case "":
		err = s.ToggleCapture(ctx)
	case "f":
		var outcome correct.Outcome
		outcome, err = s.Finish(ctx)
		if err == nil {
			fmt.Fprintf(w, "correction: %s\n", outcome)
			printAttendees(w, s.Attendees())
		}
	case "c":
		err = s.ContinueCapture()
	case "e":
		var path string
		path, err = s.Export(ctx, out)
		if err == nil {
			fmt.Fprintf(w, "exported to %s\n", path)
		}
	case "l":
		printAttendees(w, s.Attendees())
		fmt.Fprintf(w, "%s\n", peopleRecorded(s.Status().Attendees))
	case "d":
		err = removeByIndex(s, fields)
	case "r":
		s.Reset()
	case "q":
		return true
	case "h", "?":
		fmt.Fprintln(w, captureHelp)
	default:
		fmt.Fprintf(w, "unknown command %q\n", verb)
	}
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return false
}

func removeByIndex(s session, fields []string) error {
	if len(fields) != 2 {
		return errors.New("usage: d N")
	}
	var n int
	if _, err := fmt.Sscanf(fields[1], "%d", &n); err != nil {
		return fmt.Errorf("invalid entry number %q", fields[1])
	}
	attendees := s.Attendees()
	if n < 1 || n > len(attendees) {
		return fmt.Errorf("no entry %d", n)
	}
	return s.Remove(attendees[n-1].ID)
}

func peopleRecorded(n int) string {
	if n == 1 {
		return "1 person recorded"
	}
	return fmt.Sprintf("%d people recorded", n)
}

// printSink writes controller events as terminal lines.
type printSink struct {
	mu    sync.Mutex
	w     io.Writer
	count int
}

func (p *printSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", state, reason)
}

func (p *printSink) PartialTranscript(text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  ... %s\n", text)
}

func (p *printSink) AttendeesChanged(attendees []domain.Attendee) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(attendees) > p.count {
		latest := attendees[len(attendees)-1]
		fmt.Fprintf(p.w, "+ %s", latest.FormattedName)
		if latest.FormattedPhone != "" {
			fmt.Fprintf(p.w, "  %s", latest.FormattedPhone)
		}
		fmt.Fprintf(p.w, "  (%s)\n", peopleRecorded(len(attendees)))
	}
	p.count = len(attendees)
}

func (p *printSink) SessionError(code domain.ErrorCode, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "error (%s): %s\n", code, detail)
}

var _ session = (*usecase.SessionController)(nil)
