package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/moolen/faultline/internal/cluster"
	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/incident"
	"github.com/moolen/faultline/internal/lifecycle"
	"github.com/moolen/faultline/internal/lineage"
	"github.com/moolen/faultline/internal/llm"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/logprocessing"
	"github.com/moolen/faultline/internal/metrics"
	"github.com/moolen/faultline/internal/notify"
	"github.com/moolen/faultline/internal/objectstore"
	"github.com/moolen/faultline/internal/persistence"
	"github.com/moolen/faultline/internal/pipeline"
	"github.com/moolen/faultline/internal/regression"
	"github.com/moolen/faultline/internal/signal"
	"github.com/moolen/faultline/internal/tracing"
	"github.com/moolen/faultline/internal/vectorindex"
)

// app holds the wired stores, the pipeline and the components that need starting.
type app struct {
	cfg       *config.Config
	incidents *incident.Store
	clusters  *cluster.Engine
	lineage   *lineage.Tracker
	signals   *signal.Analyzer
	pipeline  *pipeline.Orchestrator
	registry  *prometheus.Registry
	manager   *lifecycle.Manager

	// backbone is registered first; the API server depends on it.
	backbone []lifecycle.Component
}

// buildApp wires every collaborator from cfg. Nothing is started.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.GetLogger("wire")
	a := &app{
		cfg:       cfg,
		incidents: incident.NewStore(),
		clusters:  cluster.NewEngine(),
		lineage:   lineage.NewTracker(nil),
		registry:  prometheus.NewRegistry(),
		manager:   lifecycle.NewManager(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCA,
		TLSInsecure: cfg.Tracing.TLSInsecure,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}
	if err := a.register(tracingProvider); err != nil {
		return nil, err
	}

	if err := a.wireSignals(); err != nil {
		return nil, err
	}

	if cfg.Persistence.SnapshotPath != "" {
		snapshots := persistence.NewManager(cfg.Persistence.SnapshotPath, cfg.Persistence.Interval, persistence.Stores{
			Incidents: a.incidents,
			Clusters:  a.clusters,
			Lineage:   a.lineage,
		})
		if err := a.register(snapshots); err != nil {
			return nil, err
		}
	}

	index, err := a.wireIndex(ctx)
	if err != nil {
		return nil, err
	}

	retrier, err := newRetrier(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := a.wireObjectStore(ctx)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier
	gh, err := notify.NewGitHubNotifier(notify.GitHubConfig{Token: cfg.GitHub.Token, BaseURL: cfg.GitHub.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub notifier: %w", err)
	}
	if gh != nil {
		notifier = gh
	} else {
		logger.Info("No GitHub token configured, notifications disabled")
	}

	p := cfg.Pipeline
	excerpt := logprocessing.DefaultExcerptConfig()
	if p.ExcerptMaxLines > 0 {
		excerpt.MaxLines = p.ExcerptMaxLines
	}
	a.pipeline, err = pipeline.New(pipeline.Config{
		CollectionPrefix: p.CollectionPrefix,
		RetrievalK:       p.RetrievalK,
		RetrievalQuery:   p.RetrievalQuery,
		SummaryMaxLen:    p.SummaryMaxLen,
		ChunkLines:       p.ChunkLines,
		Bucket:           cfg.ObjectStore.Bucket,
		Excerpt:          excerpt,
		StepTimeout:      p.StepTimeout,
	}, pipeline.Dependencies{
		Signals:   a.signals,
		Clusters:  a.clusters,
		Lineage:   a.lineage,
		Incidents: a.incidents,
		Index:     index,
		Regression: regression.NewDetector(index, regression.Config{
			Collection: p.HistoryCollection,
			TopK:       p.RegressionTopK,
			Threshold:  p.RegressionThreshold,
		}),
		LLM:         retrier,
		ObjectStore: store,
		Notifier:    notifier,
		Metrics:     metrics.NewMetrics(a.registry),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) register(c lifecycle.Component) error {
	if err := a.manager.Register(c); err != nil {
		return fmt.Errorf("failed to register %s: %w", c.Name(), err)
	}
	a.backbone = append(a.backbone, c)
	return nil
}

// wireSignals loads the rule file, if any, and watches it for changes.
func (a *app) wireSignals() error {
	rules := a.cfg.Rules
	if rules.Path == "" {
		a.signals = signal.NewAnalyzer(nil)
		return nil
	}
	rs, err := signal.LoadRuleFile(rules.Path)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	a.signals = signal.NewAnalyzer(rs)
	if !rules.Watch {
		return nil
	}
	watcher, err := config.NewRulesWatcher(rules.Path, rules.DebounceMillis, a.signals.ReloadFile)
	if err != nil {
		return err
	}
	return a.register(watcher)
}

func (a *app) wireIndex(ctx context.Context) (vectorindex.Index, error) {
	var embedder vectorindex.Embedder
	switch a.cfg.Embedding.Provider {
	case "gemini":
		g, err := vectorindex.NewGeminiEmbedder(ctx, vectorindex.GeminiConfig{
			APIKey: a.cfg.Embedding.APIKey,
			Model:  a.cfg.Embedding.Model,
		})
		if err != nil {
			return nil, err
		}
		embedder = g
	default:
		h := vectorindex.HashEmbedder{}
		if a.cfg.Vector.Backend == "falkordb" {
			h.Dimension = a.cfg.Vector.FalkorDB.Dimension
		}
		embedder = h
	}

	if a.cfg.Vector.Backend != "falkordb" {
		return vectorindex.NewMemoryIndex(embedder), nil
	}
	fc := vectorindex.DefaultFalkorConfig()
	fc.Host = a.cfg.Vector.FalkorDB.Host
	fc.Port = a.cfg.Vector.FalkorDB.Port
	fc.Password = a.cfg.Vector.FalkorDB.Password
	if a.cfg.Vector.FalkorDB.Graph != "" {
		fc.GraphName = a.cfg.Vector.FalkorDB.Graph
	}
	falkor := vectorindex.NewFalkorIndex(fc, embedder)
	if err := a.register(falkor); err != nil {
		return nil, err
	}
	return falkor, nil
}

// newRetrier builds the configured model provider behind the completion cache and the
// retry policy. It returns nil for provider "none".
func newRetrier(ctx context.Context, cfg config.LLMConfig) (*llm.Retrier, error) {
	if cfg.Provider == "none" {
		logging.GetLogger("wire").Info("Language model disabled, analyses will be degraded")
		return nil, nil
	}
	provider, err := llm.NewProvider(ctx, llm.Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		BaseURL:   cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		cached, err := llm.NewCachedProvider(provider, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		provider = cached
	}
	return llm.NewRetrier(provider, llm.RetryPolicy{
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
		Timeout: cfg.Timeout,
	}), nil
}

func (a *app) wireObjectStore(ctx context.Context) (objectstore.Store, error) {
	oc := a.cfg.ObjectStore
	if oc.Backend != "s3" {
		return objectstore.NewMemoryStore(), nil
	}
	s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:        oc.Endpoint,
		Region:          oc.Region,
		AccessKeyID:     oc.AccessKeyID,
		SecretAccessKey: oc.SecretAccessKey,
		UsePathStyle:    oc.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	// A missing bucket only degrades log storage, so startup continues.
	ensure := &lifecycle.Func{
		ComponentName: "objectstore.bucket",
		OnStart: func(ctx context.Context) error {
			if err := s3Store.EnsureBucket(ctx, oc.Bucket); err != nil {
				logging.GetLogger("wire").Warn("Failed to ensure bucket %s: %v", oc.Bucket, err)
			}
			return nil
		},
	}
	if err := a.register(ensure); err != nil {
		return nil, err
	}
	return s3Store, nil
}

// start starts all registered components.
func (a *app) start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// stop stops all components within the lifecycle shutdown timeout.
func (a *app) stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
