package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/anonymize"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/config"
	"github.com/zhouzirui/vibecheck/backend/internal/service/ingest"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
)

type analyzeOptions struct {
	metric     string
	self       string
	rawNames   bool
	noRedact   bool
	configFile string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vibecheck",
		Short:        "Analyze exported chat transcripts offline",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print the vibe report of a transcript as JSON",
		Long: `Reads a .txt export or a .zip archive holding one, runs every analyzer and
prints the report. --metric selects a single section, --self compares one
participant (raw or pseudonymous name) against the group.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runAnalyze(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&opts.metric, "metric", "", "Print a single section ("+strings.Join(metrics.Names(), ", ")+", comparison)")
	cmd.Flags().StringVar(&opts.self, "self", "", "Participant to compare against the group")
	cmd.Flags().BoolVar(&opts.rawNames, "raw-names", false, "Keep sender names instead of pseudonyms")
	cmd.Flags().BoolVar(&opts.noRedact, "no-redact", false, "Keep phone numbers and email addresses")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to a YAML file with analyzer thresholds")
	return cmd
}

func runAnalyze(ctx context.Context, path string, opts analyzeOptions) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadMetricsFile(opts.configFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	text, err := ingest.Decode(filepath.Base(path), data, 0)
	if err != nil {
		return nil, err
	}

	store := session.NewStore(
		transcript.New(),
		anonymize.New(
			anonymize.WithPseudonyms(!opts.rawNames),
			anonymize.WithRedaction(!opts.noRedact),
		),
		metrics.New(cfg, nil),
		session.WithCapacity(1),
	)
	info, err := store.Create(ctx, text)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.metric == metrics.NameComparison && opts.self == "":
		return nil, metrics.ErrSelfRequired
	case opts.metric == metrics.NameComparison, opts.metric == "" && opts.self != "":
		return store.Compare(ctx, info.ID, opts.self)
	case opts.metric != "":
		return store.Metric(ctx, info.ID, opts.metric)
	default:
		return store.Report(ctx, info.ID)
	}
}
