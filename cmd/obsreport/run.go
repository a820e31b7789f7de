package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/analysis"
	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/graph"
	"github.com/joss/obsreport/internal/ingest"
	"github.com/joss/obsreport/internal/knowledge"
	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/orchestrator"
	"github.com/joss/obsreport/internal/provider"
	"github.com/joss/obsreport/internal/render"
	"github.com/joss/obsreport/internal/runtime"
	"github.com/joss/obsreport/pkg/llm"
)

type runOptions struct {
	runID       string
	configFile  string
	provider    string
	model       string
	batchSize   int
	batches     int
	calls       int
	skipSummary bool
	metricsAddr string
	format      string
	out         string
	embedder    string
	index       string
}

func runCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := newCommand(CommandConfig{
		Use:   "run <manifest|dir>",
		Short: "Analyze observation items and build a report",
		Long: `Analyze every item of a manifest (YAML or JSON) or an image directory.

Items are processed in batches; each item gets one analysis call and the
outline is published after every batch. A final summary call retitles the
sections before they are numbered.`,
		Example: `  obsreport run site-visit.yaml
  obsreport run ./photos --provider google --calls 8
  obsreport run job.yaml --format markdown --out report.md`,
		Args: cobra.ExactArgs(1),
		RunFunc: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, args[0], opts)
		},
	})

	f := cmd.Flags()
	f.StringVar(&opts.runID, "run-id", "", "Run identifier (default: random UUID)")
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML run configuration (default $OBSREPORT_CONFIG)")
	f.StringVarP(&opts.provider, "provider", "p", "", "Provider: openai, google, anthropic, mock (default $OBSREPORT_PROVIDER)")
	f.StringVarP(&opts.model, "model", "m", "", "Model override")
	f.IntVar(&opts.batchSize, "batch-size", 0, "Items per batch")
	f.IntVar(&opts.batches, "batches", 0, "Batches in flight")
	f.IntVar(&opts.calls, "calls", 0, "Provider calls in flight")
	f.BoolVar(&opts.skipSummary, "skip-summary", false, "Skip the title reconciliation call")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	f.StringVarP(&opts.format, "format", "f", "text", "Output format: text, markdown, json")
	f.StringVarP(&opts.out, "out", "o", "", "Write the report to a file instead of stdout")
	f.StringVar(&opts.embedder, "embedder", "local", "Context embedder: local, openai")
	f.StringVar(&opts.index, "index", "memory", "Context index: memory, graph")
	return cmd
}

func executeRun(cmd *cobra.Command, path string, opts *runOptions) error {
	switch strings.ToLower(opts.format) {
	case "", "text", "markdown", "md", "json":
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}

	input, err := ingest.Load(path)
	if err != nil {
		return err
	}
	stats := input.Stats()
	cliLog.Info("input_loaded", map[string]interface{}{
		"path":   path,
		"items":  stats.Items,
		"images": stats.Images,
		"notes":  stats.Notes,
	})

	sm := runtime.NewShutdownManager(cmd.Context(), runtime.DefaultShutdownTimeout)
	stop := sm.ListenForSignals()
	defer stop()
	defer sm.Shutdown()
	ctx := logging.WithRunID(sm.Context(), opts.runID)

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	sm.Register("store", func(context.Context) error { return st.Close() })

	gen, err := newGenerator(opts.provider)
	if err != nil {
		return err
	}

	ctxSource, err := buildContext(ctx, sm, input, opts)
	if err != nil {
		return err
	}

	m := metrics.Global()
	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, m)
		if err := srv.Start(); err != nil {
			return err
		}
		sm.Register("metrics", srv.Stop)
		cliLog.Info("metrics_serving", map[string]interface{}{"addr": srv.Addr()})
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d items via %s\n", opts.runID, stats.Items, gen.ID())

	sections, err := orchestrator.Run(ctx, opts.runID, input.Items, cfg, orchestrator.Deps{
		Generator: gen,
		Snapshots: st,
		Artifacts: st,
		Context:   ctxSource,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", opts.runID, err)
	}
	return writeReport(cmd, opts, sections)
}

// loadRunConfig layers file, environment and explicitly set flags.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (config.RunConfig, error) {
	file := opts.configFile
	if file == "" {
		file = config.Env().ConfigFile
	}
	cfg := config.Default()
	if file != "" {
		var err error
		if cfg, err = config.LoadFile(file); err != nil {
			return cfg, err
		}
	}
	cfg = cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = opts.batchSize
	}
	if flags.Changed("batches") {
		cfg.BatchConcurrency = opts.batches
	}
	if flags.Changed("calls") {
		cfg.CallConcurrency = opts.calls
	}
	if flags.Changed("skip-summary") {
		cfg.SkipSummary = opts.skipSummary
	}
	return cfg, nil
}

func newGenerator(id string) (llm.Generator, error) {
	env := config.Env()
	if id == "" {
		id = env.Provider
	}
	var opts []provider.ConfigOption
	switch id {
	case "openai", "gpt":
		if env.OpenAIBaseURL != "" {
			opts = append(opts, provider.WithBaseURL(env.OpenAIBaseURL))
		}
	case "anthropic", "claude":
		if env.AnthropicBaseURL != "" {
			opts = append(opts, provider.WithBaseURL(env.AnthropicBaseURL))
		}
	}
	return provider.Default.CreateByID(id, opts...)
}

// buildContext indexes the input's notes. It returns nil when there is
// nothing to retrieve from.
func buildContext(ctx context.Context, sm *runtime.ShutdownManager, input *ingest.Input, opts *runOptions) (analysis.ContextSource, error) {
	if len(input.Notes) == 0 {
		return nil, nil
	}

	var embedder knowledge.Embedder
	switch opts.embedder {
	case "", "local":
	case "openai":
		env := config.Env()
		embedder = knowledge.NewOpenAIEmbedder(env.OpenAIKey, env.OpenAIBaseURL, "")
	default:
		return nil, fmt.Errorf("unknown embedder %q", opts.embedder)
	}

	var index knowledge.Index
	switch opts.index {
	case "", "memory":
	case "graph":
		db, err := graph.Dial(ctx, graph.ConfigFromEnv())
		if err != nil {
			cliLog.Warn("context_index_fallback", map[string]interface{}{"index": "memory"}, err)
			break
		}
		sm.Register("context-graph", func(context.Context) error { return db.Close() })
		index = knowledge.NewGraphIndex(db)
	default:
		return nil, fmt.Errorf("unknown index %q", opts.index)
	}

	r := knowledge.NewRetriever(embedder, index)
	start := time.Now()
	n, err := input.Index(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("index notes: %w", err)
	}
	cliLog.TimedEvent("context_indexed", start, map[string]interface{}{"chunks": n})
	return r, nil
}

func writeReport(cmd *cobra.Command, opts *runOptions, sections []domain.Section) error {
	var body string
	switch strings.ToLower(opts.format) {
	case "json":
		var sb strings.Builder
		if err := printJSON(&sb, sections); err != nil {
			return err
		}
		body = sb.String()
	case "markdown", "md":
		body = render.Markdown("Observation report", sections)
	case "text", "":
		r := render.New(false)
		if opts.out == "" {
			r = render.Auto(os.Stdout)
		}
		body = r.Outline(sections)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	if opts.out == "" {
		printText(cmd.OutOrStdout(), body)
		return nil
	}
	if err := os.WriteFile(opts.out, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", opts.out)
	return nil
}
