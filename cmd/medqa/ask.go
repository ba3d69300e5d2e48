package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"medqa/internal/config"
	"medqa/internal/coordinator"
	"medqa/internal/retrieval"
	"medqa/pkg/types"
)

func askCmd(opts *options) *cobra.Command {
	var (
		server       string
		noRetrieval  bool
		conversation string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the answer to stdout",
		Example: "  medqa ask \"first-line treatment for uncomplicated malaria\"\n" +
			"  medqa ask --server http://localhost:8080 \"fever in a 2 year old\"",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			useRetrieval := !noRetrieval
			req := types.GenerateRequest{
				Query:          strings.Join(args, " "),
				UseRetrieval:   &useRetrieval,
				ConversationID: conversation,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			out := &answerPrinter{w: cmd.OutOrStdout()}
			if server != "" {
				return askRemote(ctx, http.DefaultClient, server, req, out)
			}
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return askLocal(ctx, cfg, req, out)
		},
	}
	cmd.Flags().StringVar(&server, "server", envStr("MEDQA_SERVER"), "Ask a running medqa server instead of loading the model")
	cmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "Answer without guideline passages")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation id to continue")
	return cmd
}

// answerPrinter renders a stream on a terminal. Cumulative answers are
// printed as deltas.
type answerPrinter struct {
	w       io.Writer
	printed string
}

func (p *answerPrinter) sources(texts []string) {
	if len(texts) == 0 {
		return
	}
	fmt.Fprintln(p.w, "Sources:")
	for i, t := range texts {
		fmt.Fprintf(p.w, "  [%d] %s\n", i+1, firstLine(t, 100))
	}
	fmt.Fprintln(p.w)
}

func (p *answerPrinter) answer(cumulative string) {
	if strings.HasPrefix(cumulative, p.printed) {
		io.WriteString(p.w, cumulative[len(p.printed):])
	} else {
		// The backend rewrote earlier text; start over on a new line.
		fmt.Fprintf(p.w, "\n%s", cumulative)
	}
	p.printed = cumulative
}

func (p *answerPrinter) done() { fmt.Fprintln(p.w) }

func (p *answerPrinter) cancelled(hadPartial bool) {
	if hadPartial {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, "[cancelled]")
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// printerSink adapts answerPrinter to the coordinator's Sink.
type printerSink struct {
	p    *answerPrinter
	err  *coordinator.GenerationError
	done chan coordinator.Outcome
}

func (s *printerSink) Deliver(e coordinator.Event) {
	switch e.Kind {
	case coordinator.KindRetrievedDocs:
		s.p.sources(retrieval.Texts(e.Passages))
	case coordinator.KindPartialText:
		s.p.answer(e.Text)
	case coordinator.KindDone:
		s.p.done()
	}
}

func (s *printerSink) Fail(err *coordinator.GenerationError) { s.err = err }

func (s *printerSink) Close(o coordinator.Outcome) {
	if o.State == coordinator.StateCancelled {
		s.p.cancelled(o.HadPartial)
	}
	s.done <- o
}

func askLocal(ctx context.Context, cfg config.Config, req types.GenerateRequest, out *answerPrinter) error {
	log := newLogger(cfg.LogLevel)
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.WaitForInit(ctx); err != nil {
		return err
	}
	sink := &printerSink{p: out, done: make(chan coordinator.Outcome, 1)}
	if _, err := a.svc.Generate(ctx, req, sink); err != nil {
		return err
	}
	select {
	case <-sink.done:
	case <-ctx.Done():
		a.svc.Cancel()
		<-sink.done
	}
	if sink.err != nil {
		return sink.err
	}
	return nil
}

// askRemote posts req to a medqa server and renders its NDJSON stream.
func askRemote(ctx context.Context, client *http.Client, base string, req types.GenerateRequest, out *answerPrinter) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			out.cancelled(out.printed != "")
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("server: %s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("server: %s", resp.Status)
	}
	return renderStream(resp.Body, out)
}

// renderStream prints NDJSON lines until the stream ends. Lines of an unknown
// shape are skipped.
func renderStream(r io.Reader, out *answerPrinter) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line, ok := types.DecodeLine(sc.Bytes())
		if !ok {
			continue
		}
		switch {
		case line.Error != nil:
			return fmt.Errorf("%s: %s", line.Error.Kind, line.Error.Message)
		case line.Cancelled:
			out.cancelled(line.HadPartial)
			return nil
		case line.Done:
			out.done()
			return nil
		case line.Response != nil:
			out.answer(*line.Response)
		case line.Results != nil:
			out.sources(line.Results)
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			out.cancelled(out.printed != "")
			return nil
		}
		return err
	}
	return errors.New("stream ended before completion")
}
