package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moolen/faultline/internal/cluster"
	"github.com/moolen/faultline/internal/confidence"
	"github.com/moolen/faultline/internal/fingerprint"
	"github.com/moolen/faultline/internal/incident"
	"github.com/moolen/faultline/internal/lineage"
	"github.com/moolen/faultline/internal/llm"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/logprocessing"
	"github.com/moolen/faultline/internal/metrics"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/notify"
	"github.com/moolen/faultline/internal/objectstore"
	"github.com/moolen/faultline/internal/regression"
	"github.com/moolen/faultline/internal/signal"
	"github.com/moolen/faultline/internal/vectorindex"
)

// Config holds orchestrator settings.
type Config struct {
	CollectionPrefix string
	RetrievalK       int
	RetrievalQuery   string
	SummaryMaxLen    int
	ChunkLines       int
	Bucket           string
	Excerpt          logprocessing.ExcerptConfig
	// StepTimeout bounds each object store, index and notifier call. Zero disables it.
	StepTimeout time.Duration
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		CollectionPrefix: "logs",
		RetrievalK:       5,
		RetrievalQuery:   DefaultRetrievalQuery,
		SummaryMaxLen:    200,
		ChunkLines:       logprocessing.DefaultChunkLines,
		Bucket:           objectstore.DefaultBucket,
		Excerpt:          logprocessing.DefaultExcerptConfig(),
		StepTimeout:      30 * time.Second,
	}
}

// Dependencies are the stores and collaborators a run uses. Signals, Clusters, Lineage
// and Incidents are required. A nil Index disables indexing, retrieval and regression
// detection; a nil LLM degrades every analysis; a nil Notifier skips notification.
type Dependencies struct {
	Signals   *signal.Analyzer
	Clusters  *cluster.Engine
	Lineage   *lineage.Tracker
	Incidents *incident.Store

	Index       vectorindex.Index
	Regression  *regression.Detector
	LLM         *llm.Retrier
	ObjectStore objectstore.Store
	Notifier    notify.Notifier
	Scorer      *confidence.Scorer
	Metrics     *metrics.Metrics

	Clock func() time.Time
	NewID func() string
}

// Orchestrator runs the incident pipeline. It is safe for concurrent use.
type Orchestrator struct {
	config Config
	deps   Dependencies
	tracer trace.Tracer
	logger *logging.Logger
}

// New creates an orchestrator.
func New(config Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Signals == nil || deps.Clusters == nil || deps.Lineage == nil || deps.Incidents == nil {
		return nil, errors.New("pipeline: signals, clusters, lineage and incidents are required")
	}
	def := DefaultConfig()
	if config.CollectionPrefix == "" {
		config.CollectionPrefix = def.CollectionPrefix
	}
	if config.RetrievalK <= 0 {
		config.RetrievalK = def.RetrievalK
	}
	if config.RetrievalQuery == "" {
		config.RetrievalQuery = def.RetrievalQuery
	}
	if config.SummaryMaxLen <= 0 {
		config.SummaryMaxLen = def.SummaryMaxLen
	}
	if config.Bucket == "" {
		config.Bucket = def.Bucket
	}
	if deps.Scorer == nil {
		deps.Scorer = confidence.NewScorer()
	}
	if deps.Regression == nil && deps.Index != nil {
		deps.Regression = regression.NewDetector(deps.Index, regression.DefaultConfig())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Orchestrator{
		config: config,
		deps:   deps,
		tracer: otel.Tracer("faultline/pipeline"),
		logger: logging.GetLogger("pipeline"),
	}, nil
}

// Collection returns the per-incident retrieval collection name.
func (o *Orchestrator) Collection(incidentID string) string {
	return o.config.CollectionPrefix + "_" + incidentID
}

// Analyze processes one submission. Collaborator failures degrade the affected step and
// never abort the run.
func (o *Orchestrator) Analyze(ctx context.Context, sub Submission) (*Result, error) {
	if strings.TrimSpace(sub.LogText) == "" && sub.LogKey == "" {
		return nil, fmt.Errorf("%w: log_text or log_key is required", ErrInvalidSubmission)
	}

	id := sub.IncidentID
	if id == "" {
		id = o.deps.NewID()
	}
	if err := o.deps.Incidents.Reserve(id); err != nil {
		return nil, err
	}
	saved := false
	defer func() {
		if !saved {
			o.deps.Incidents.Release(id)
		}
	}()

	ctx, span := o.tracer.Start(ctx, "pipeline.analyze", trace.WithAttributes(
		attribute.String("incident_id", id),
		attribute.String("repo", sub.Repo),
	))
	defer span.End()

	done := o.deps.Metrics.RunStarted()
	r := &run{
		o:      o,
		ctx:    ctx,
		id:     id,
		sub:    sub,
		logger: o.logger.WithField("incident_id", id),
		result: &Result{},
	}

	result, err := r.execute()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		done(metrics.OutcomeFailed)
		return nil, err
	}
	saved = true

	outcome := metrics.OutcomeAnalyzed
	if result.Gated {
		outcome = metrics.OutcomeGated
	}
	done(outcome)
	span.SetAttributes(
		attribute.Bool("gated", result.Gated),
		attribute.String("fingerprint", result.Incident.Metadata.Fingerprint),
		attribute.String("cluster_id", result.Incident.Metadata.ClusterID),
		attribute.Int("confidence", result.Incident.Confidence.Score),
	)
	return result, nil
}

// run holds the state of one Analyze call.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	id     string
	sub    Submission
	logger *logging.Logger
	result *Result
	stored bool
}

// step runs fn in a child span and records its outcome. A degraded outcome is logged
// at WARN and counted against the step's collaborator.
func (r *run) step(name string, fn func(ctx context.Context) (StepStatus, error)) StepStatus {
	ctx, span := r.o.tracer.Start(r.ctx, "pipeline."+name)
	defer span.End()

	status, err := fn(ctx)
	res := StepResult{Step: name, Status: status}
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("status", status.String()))

	if status == StepDegraded {
		r.logger.WarnWithFields("step degraded",
			logging.Field("step", name),
			logging.Field("error", res.Error),
		)
		r.o.deps.Metrics.CollaboratorFailure(name)
	}
	r.result.Steps = append(r.result.Steps, res)
	return status
}

func (r *run) skip(names ...string) {
	for _, name := range names {
		r.result.Steps = append(r.result.Steps, StepResult{Step: name, Status: StepSkipped})
	}
}

func (r *run) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.config.StepTimeout > 0 {
		return context.WithTimeout(ctx, r.o.config.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *run) execute() (*Result, error) {
	o := r.o
	deps := o.deps

	text, err := r.loadLog()
	if err != nil {
		return nil, err
	}
	r.storeLog()

	// Signal extraction always runs.
	var (
		extraction signal.Extraction
		language   string
		sig        models.FailureSignature
	)
	r.step(StepSignal, func(context.Context) (StepStatus, error) {
		extraction = deps.Signals.ExtractFailureBlocks(text)
		language = deps.Signals.DetectLanguage(text)
		sig = fingerprint.Extract(text, language)
		return StepOK, nil
	})
	r.logger.DebugWithFields("signal extracted",
		logging.Field("language", language),
		logging.Field("fingerprint", sig.Fingerprint),
		logging.Field("blocks", len(extraction.Blocks)),
	)

	var assignment cluster.Assignment
	r.step(StepCluster, func(context.Context) (StepStatus, error) {
		assignment = deps.Clusters.Assign(r.id, sig.Fingerprint, language, sig.ExceptionOrUnknown())
		return StepOK, nil
	})
	// Runs that end before persist leave no cluster membership behind.
	defer func() {
		if !r.stored {
			deps.Clusters.Unassign(assignment.ClusterID, r.id)
		}
	}()

	inc := &models.Incident{
		ID:        r.id,
		Timestamp: deps.Clock(),
		Metadata: models.IncidentMetadata{
			Language:    language,
			Exception:   sig.ExceptionOrUnknown(),
			FailingLine: sig.FailingLineOrUnknown(),
			Fingerprint: sig.Fingerprint,
			ClusterID:   assignment.ClusterID,
			Repo:        r.sub.Repo,
			PRNumber:    r.sub.PRNumber,
			LogKey:      r.sub.LogKey,
		},
	}

	if !extraction.Found() {
		return r.finishGated(text, inc)
	}
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	var excerpt logprocessing.Excerpt
	r.step(StepExcerpt, func(context.Context) (StepStatus, error) {
		excerpt = logprocessing.ReduceExcerpt(extraction.Text, o.config.Excerpt)
		return StepOK, nil
	})

	hits := r.indexAndRetrieve(excerpt.Text)
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	inc.AnalysisText = r.analyze(language, sig, FormatContext(hits, excerpt.Text))
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	r.step(StepConfidence, func(context.Context) (StepStatus, error) {
		inc.Confidence = deps.Scorer.Score(text, inc.AnalysisText)
		return StepOK, nil
	})
	r.detectRegression(inc)
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.persist(inc); err != nil {
		return nil, err
	}
	r.notify(inc)
	return r.result, nil
}

// finishGated stores a degraded incident for a log without failure signal. No index,
// model, regression or notifier call is made.
func (r *run) finishGated(text string, inc *models.Incident) (*Result, error) {
	r.result.Gated = true
	r.o.deps.Metrics.GateShortCircuit()
	r.logger.Info("No failure signal found, skipping analysis")

	inc.Metadata.Gated = true
	inc.AnalysisText = NoSignalSentinel
	r.skip(gatedSteps[:len(gatedSteps)-1]...)
	r.step(StepConfidence, func(context.Context) (StepStatus, error) {
		inc.Confidence = r.o.deps.Scorer.Score(text, inc.AnalysisText)
		return StepOK, nil
	})

	if err := r.persist(inc); err != nil {
		return nil, err
	}
	r.skip(StepNotify)
	return r.result, nil
}

// loadLog returns the inline text or reads the referenced log. A failed read is fatal.
func (r *run) loadLog() (string, error) {
	if strings.TrimSpace(r.sub.LogText) != "" {
		r.skip(StepLoadLog)
		return r.sub.LogText, nil
	}

	var text string
	status := r.step(StepLoadLog, func(ctx context.Context) (StepStatus, error) {
		store := r.o.deps.ObjectStore
		if store == nil {
			return StepFatal, errors.New("no object store configured")
		}
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		data, err := store.Get(ctx, r.sub.LogKey, r.o.config.Bucket)
		if err != nil {
			return StepFatal, err
		}
		text = string(data)
		return StepOK, nil
	})
	if status == StepFatal {
		last := r.result.Steps[len(r.result.Steps)-1]
		return "", fmt.Errorf("%w: %s: %s", ErrLogUnavailable, r.sub.LogKey, last.Error)
	}
	return text, nil
}

// storeLog writes inline text to the object store when the submission asks for it.
func (r *run) storeLog() {
	if !r.sub.Store || r.sub.LogText == "" || r.o.deps.ObjectStore == nil {
		r.skip(StepStoreLog)
		return
	}
	key := r.id + ".log"
	status := r.step(StepStoreLog, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		if err := r.o.deps.ObjectStore.Put(ctx, key, []byte(r.sub.LogText), r.o.config.Bucket); err != nil {
			return StepDegraded, err
		}
		return StepOK, nil
	})
	if status == StepOK {
		r.result.StoredKey = key
	}
}

// indexAndRetrieve indexes the excerpt chunks into the incident collection and returns the
// top-k chunks for the retrieval query. Failures yield no hits.
func (r *run) indexAndRetrieve(excerpt string) []vectorindex.Hit {
	index := r.o.deps.Index
	if index == nil {
		r.skip(StepIndex, StepRetrieve)
		return nil
	}
	collection := r.o.Collection(r.id)

	r.step(StepIndex, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		for i, chunk := range logprocessing.ChunkLines(excerpt, r.o.config.ChunkLines) {
			payload := map[string]string{
				regression.PayloadIncidentID: r.id,
				"chunk":                      strconv.Itoa(i),
			}
			if err := index.Index(ctx, chunk, collection, payload); err != nil {
				return StepDegraded, fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		return StepOK, nil
	})

	var hits []vectorindex.Hit
	r.step(StepRetrieve, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		var err error
		hits, err = index.Search(ctx, r.o.config.RetrievalQuery, collection, r.o.config.RetrievalK)
		if err != nil {
			hits = nil
			return StepDegraded, err
		}
		return StepOK, nil
	})
	return hits
}

// analyze returns the analysis text. Without an exception the model is not called.
func (r *run) analyze(language string, sig models.FailureSignature, excerptContext string) string {
	if sig.Exception == "" {
		r.skip(StepAnalysis)
		return confidence.NoErrorSentinel
	}

	var text string
	r.step(StepAnalysis, func(ctx context.Context) (StepStatus, error) {
		retrier := r.o.deps.LLM
		if retrier == nil {
			text = llm.Sentinel(0, llm.ErrDisabled)
			r.o.deps.Metrics.LLMRequest("error")
			return StepDegraded, llm.ErrDisabled
		}
		res := retrier.Complete(ctx, BuildPrompt(language, sig, excerptContext))
		text = res.Text
		if res.Degraded() {
			r.o.deps.Metrics.LLMRequest("error")
			return StepDegraded, res.Err
		}
		r.o.deps.Metrics.LLMRequest("ok")
		return StepOK, nil
	})
	return text
}

// detectRegression matches the analysis against history, then adds it to history.
// Sentinel analyses are neither matched nor remembered.
func (r *run) detectRegression(inc *models.Incident) {
	detector := r.o.deps.Regression
	if detector == nil || !isRealAnalysis(inc.AnalysisText) {
		r.skip(StepRegression, StepHistory)
		return
	}

	r.step(StepRegression, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		inc.RegressionOf = detector.Detect(ctx, r.id, inc.AnalysisText)
		if inc.RegressionOf != nil {
			r.o.deps.Metrics.Regression()
		}
		return StepOK, nil
	})

	r.step(StepHistory, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		if err := detector.Remember(ctx, r.id, inc.AnalysisText); err != nil {
			return StepDegraded, err
		}
		return StepOK, nil
	})
}

func isRealAnalysis(text string) bool {
	return strings.TrimSpace(text) != "" &&
		!strings.HasPrefix(text, llm.ErrorPrefix) &&
		!strings.Contains(text, confidence.NoErrorSentinel)
}

// persist saves the incident and records its lineage.
func (r *run) persist(inc *models.Incident) error {
	deps := r.o.deps
	inc.Summary = incident.Summarize(inc.AnalysisText, r.o.config.SummaryMaxLen)

	var saveErr error
	r.step(StepPersist, func(context.Context) (StepStatus, error) {
		if err := deps.Incidents.Save(inc); err != nil {
			saveErr = err
			return StepFatal, err
		}
		return StepOK, nil
	})
	if saveErr != nil {
		return saveErr
	}
	r.stored = true

	r.step(StepLineage, func(context.Context) (StepStatus, error) {
		deps.Lineage.Record(inc.Metadata.Fingerprint, inc.ID, inc.Metadata.Repo, inc.Metadata.Language)
		return StepOK, nil
	})

	r.result.Incident = inc.Clone()
	r.logger.InfoWithFields("incident stored",
		logging.Field("cluster_id", inc.Metadata.ClusterID),
		logging.Field("confidence", inc.Confidence.Level.String()),
		logging.Field("gated", inc.Metadata.Gated),
	)
	return nil
}

// notify posts the summary when repository and change context are present.
func (r *run) notify(inc *models.Incident) {
	notifier := r.o.deps.Notifier
	if notifier == nil || r.sub.Repo == "" || r.sub.PRNumber <= 0 {
		r.skip(StepNotify)
		return
	}
	r.step(StepNotify, func(ctx context.Context) (StepStatus, error) {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		err := notifier.PostComment(ctx, r.sub.Repo, strconv.Itoa(r.sub.PRNumber), FormatNotification(inc))
		if err != nil {
			return StepDegraded, err
		}
		return StepOK, nil
	})
}
