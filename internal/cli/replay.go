package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/config"
	"github.com/Spok95/activejob-metrics/internal/ctxutil"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/wire"
)

type replayOpts struct {
	namespace string
	tags      string
	strict    bool
}

func newReplayCmd() *cobra.Command {
	var o replayOpts
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Feed a JSON-lines file of job events through the handler and print the resulting metrics",
		Long: `Each line is an envelope {"event": "perform.active_job", "payload": {...}}.
Use "-" to read from stdin. Lines that fail are reported on stderr and skipped
unless --strict is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(cmd.Context(), in, cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}
	cmd.Flags().StringVar(&o.namespace, "namespace", jobmetrics.DefaultNamespace, "metric namespace")
	cmd.Flags().StringVar(&o.tags, "tags", "", "default tags, k=v,k2=v2")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "stop at the first event that cannot be recorded")
	return cmd
}

func replay(ctx context.Context, in io.Reader, out, errOut io.Writer, o replayOpts) error {
	tags, err := config.ParseTags(o.tags)
	if err != nil {
		return fmt.Errorf("--tags: %w", err)
	}
	reg := prometheus.NewRegistry()
	m, err := jobmetrics.NewMetrics(reg, jobmetrics.MetricsOpts{Namespace: o.namespace, DefaultTags: tags})
	if err != nil {
		return err
	}
	h := jobmetrics.NewHandler(m, jobmetrics.WithLogger(zap.NewNop()))
	ctx = ctxutil.WithSource(ctx, "replay")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line, failed := 0, 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		ev, err := wire.DecodeEnvelope(raw)
		if err == nil {
			err = h.Handle(ctx, ev)
		}
		if err != nil {
			if o.strict {
				return fmt.Errorf("line %d: %w", line, err)
			}
			failed++
			fmt.Fprintf(errOut, "line %d: %v\n", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	if failed > 0 {
		fmt.Fprintf(errOut, "%d of %d lines skipped\n", failed, line)
	}
	return nil
}
