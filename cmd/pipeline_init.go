package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/fetcher"
	"github.com/sells-group/appraise-cli/internal/imagehash"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/pipeline"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/internal/sandbox"
	"github.com/sells-group/appraise-cli/internal/store"
	"github.com/sells-group/appraise-cli/internal/vision"
	anthropicpkg "github.com/sells-group/appraise-cli/pkg/anthropic"
)

// pipelineEnv holds the store and the orchestrator needed by the run and
// serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the store and wires the executor, vision client, image
// hasher and orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	ex, err := initExecutor(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var analyzer vision.Analyzer = unconfiguredAnalyzer{}
	if cfg.Anthropic.Key != "" {
		analyzer = vision.NewClaudeAnalyzer(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.VisionModel, cfg.Anthropic.MaxTokens)
	} else {
		zap.L().Warn("APPRAISE_ANTHROPIC_KEY not set, image analysis will fail outside the sandbox")
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RatePerSec: cfg.Fetch.RatePerSec,
		Burst:      cfg.Fetch.Burst,
		MaxBytes:   cfg.Fetch.MaxBytes,
	})

	orch := pipeline.New(pipeline.Config{
		ImageConcurrency: cfg.Pipeline.ImageConcurrency,
		Currency:         cfg.Valuation.Currency,
		GapYears:         cfg.Provenance.GapYears,
	}, st, analyzer, imagehash.New(f), ex, pipeline.WithDeadLetters(cfg.DLQ.MaxRetries, cfg.DLQ.BaseDelay()))

	return &pipelineEnv{Store: st, Orchestrator: orch}, nil
}

// initExecutor builds the step executor: breakers from config, events to the
// log and the audit table, and sandbox results when enabled.
func initExecutor(st store.Store) (*executor.Executor, error) {
	breakers := resilience.NewRegistry(resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))

	opts := []executor.Option{
		executor.WithSink(executor.MultiSink{executor.NewZapSink(zap.L()), store.NewEventSink(st)}),
	}
	if cfg.Sandbox.Enabled {
		table, err := sandbox.Load(cfg.Sandbox.Path)
		if err != nil {
			return nil, eris.Wrap(err, "load sandbox table")
		}
		opts = append(opts, executor.WithOverrides(table))
		zap.L().Info("sandbox enabled", zap.Strings("items", table.Items()))
	}

	return executor.New(breakers, executor.Config{
		StepTimeout: cfg.Pipeline.StepTimeout(),
		Retry: resilience.FromRetryConfig(
			cfg.Pipeline.Retries,
			cfg.Pipeline.InitialBackoffMs,
			cfg.Pipeline.MaxBackoffMs,
			cfg.Pipeline.JitterFraction,
		),
	}, opts...), nil
}

// unconfiguredAnalyzer stands in when no API key is set so that sandboxed
// items still run.
type unconfiguredAnalyzer struct{}

func (unconfiguredAnalyzer) AnalyzeImages(context.Context, []model.ImageRef, *model.ItemContext) (*model.ImageAnalysis, error) {
	return nil, eris.New("vision: anthropic key not configured")
}
