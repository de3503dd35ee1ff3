package evaluation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aiengineer/rageval/internal/bus"
	"github.com/aiengineer/rageval/internal/judgments"
	"github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/logger"
)

// Recorder observes evaluation outcomes. metrics.Metrics implements it.
type Recorder interface {
	RecordEvaluation(queries int, duration time.Duration, err error)
}

// Config configures an Evaluator.
type Config struct {
	// Ks are the cutoffs scored when a run does not name its own.
	Ks []int

	// DefaultK is the single cutoff used when a request omits k.
	DefaultK int
}

// DefaultConfig returns the default cutoffs.
func DefaultConfig() Config {
	return Config{Ks: []int{1, 3, 5, 10}, DefaultK: DefaultK}
}

// Evaluator scores ranked retrieval output against stored judgments.
type Evaluator struct {
	cfg       Config
	judgments judgments.Store
	bus       bus.Bus
	recorder  Recorder
	log       *logger.Logger
}

// NewEvaluator creates a new evaluator. publisher and recorder may be nil.
func NewEvaluator(store judgments.Store, publisher bus.Bus, recorder Recorder, log *logger.Logger, cfg Config) *Evaluator {
	if len(cfg.Ks) == 0 {
		cfg.Ks = DefaultConfig().Ks
	}
	if cfg.DefaultK < 1 {
		cfg.DefaultK = DefaultK
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{
		cfg:       cfg,
		judgments: store,
		bus:       publisher,
		recorder:  recorder,
		log:       log,
	}
}

// DefaultK returns the cutoff applied when a request omits k.
func (e *Evaluator) DefaultK() int {
	return e.cfg.DefaultK
}

// Judgments returns the store the evaluator reads ground truth from.
func (e *Evaluator) Judgments() judgments.Store {
	return e.judgments
}

// AddJudgments stores judgments and announces the affected queries.
func (e *Evaluator) AddJudgments(ctx context.Context, js []judgments.Judgment) error {
	if e.judgments == nil {
		return errors.ServiceUnavailableError("judgments store")
	}
	if err := e.judgments.Add(ctx, js); err != nil {
		return err
	}

	if e.bus != nil {
		grouped := judgments.Group(js)
		queries := make([]string, 0, len(grouped))
		for q := range grouped {
			queries = append(queries, q)
		}
		sort.Strings(queries)
		event := bus.NewEvent(bus.TopicJudgmentsUpdated, "evaluator", map[string]any{"queries": queries})
		if err := e.bus.Publish(ctx, bus.TopicJudgmentsUpdated, event); err != nil {
			e.log.WithError(err).Warn("Failed to publish judgments event")
		}
	}
	return nil
}

// groundTruth resolves the relevant set for a query. Inline relevance wins;
// otherwise the store is consulted, and an unjudged query has an empty set.
func (e *Evaluator) groundTruth(ctx context.Context, q QueryRun) (GroundTruth, error) {
	if q.Relevant != nil {
		return NewGroundTruth(q.Relevant...), nil
	}
	if e.judgments == nil {
		return GroundTruth{}, nil
	}
	ids, err := e.judgments.GroundTruth(ctx, q.QueryID)
	if err != nil {
		return nil, err
	}
	return NewGroundTruth(ids...), nil
}

// EvaluateQuery scores one query's ranked output at each k in ks.
func (e *Evaluator) EvaluateQuery(ctx context.Context, q QueryRun, ks []int) (*QueryResult, error) {
	if q.QueryID == "" {
		return nil, errors.ValidationError("query id is required")
	}
	if len(ks) == 0 {
		ks = e.cfg.Ks
	}

	gt, err := e.groundTruth(ctx, q)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		QueryID:     q.QueryID,
		Query:       q.Query,
		Relevant:    gt.Len(),
		ResultCount: len(q.Ranked),
		Hits:        make(map[int]int, len(ks)),
		Recall:      make(map[int]float64, len(ks)),
		Precision:   make(map[int]float64, len(ks)),
		NDCG:        make(map[int]float64, len(ks)),
		RR:          ReciprocalRank(gt, q.Ranked),
		AP:          AveragePrecision(gt, q.Ranked),
	}

	for _, k := range ks {
		result.Hits[k], _ = RetrievalAtK(gt, q.Ranked, k)
		result.Recall[k] = RecallAtK(gt, q.Ranked, k)
		result.Precision[k] = PrecisionAtK(gt, q.Ranked, k)
		result.NDCG[k] = NDCGAtK(gt, q.Ranked, k)
	}

	if gt.Len() == 0 {
		e.log.WithQuery(q.QueryID).Debug("Query has no ground truth, recall is 0")
	}

	return result, nil
}

// EvaluateRun scores every query of a run, summarizes, and announces the
// summary on the bus. Queries are scored in order; the first failure aborts.
func (e *Evaluator) EvaluateRun(ctx context.Context, run Run) (report *RunReport, err error) {
	start := time.Now()
	defer func() {
		if e.recorder != nil {
			e.recorder.RecordEvaluation(len(run.Queries), time.Since(start), err)
		}
	}()

	ks, err := normalizeKs(run.Ks, e.cfg.Ks)
	if err != nil {
		return nil, err
	}
	if err := validateQueries(run.Queries); err != nil {
		return nil, err
	}

	log := e.log.WithContext(ctx).WithRun(run.Name)
	results := make([]*QueryResult, 0, len(run.Queries))
	for _, q := range run.Queries {
		if err := ctx.Err(); err != nil {
			timeout := errors.TimeoutError("evaluation")
			timeout.Err = err
			return nil, timeout
		}
		res, err := e.EvaluateQuery(ctx, q, ks)
		if err != nil {
			log.WithQuery(q.QueryID).WithError(err).Error("Query evaluation failed")
			return nil, err
		}
		results = append(results, res)
	}

	report = &RunReport{
		Name:    run.Name,
		Ks:      ks,
		Results: results,
		Summary: Summarize(results),
	}

	log.Info("Evaluation completed",
		"queries", report.Summary.QueryCount,
		"mrr", report.Summary.MRR,
		"map", report.Summary.MAP,
		"duration", time.Since(start),
	)

	e.publish(ctx, report)
	return report, nil
}

// publish announces a completed run. Delivery failures are logged only:
// the report is already computed and is returned either way.
func (e *Evaluator) publish(ctx context.Context, report *RunReport) {
	if e.bus == nil {
		return
	}
	event := bus.NewEvent(bus.TopicEvaluationCompleted, "evaluator", CompletedPayload{
		Run:     report.Name,
		Ks:      report.Ks,
		Summary: report.Summary,
	})
	if err := e.bus.Publish(ctx, bus.TopicEvaluationCompleted, event); err != nil {
		e.log.WithRun(report.Name).WithError(err).Warn("Failed to publish evaluation event")
	}
}

// CompletedPayload is the payload of evaluation.completed events.
type CompletedPayload struct {
	Run     string   `json:"run"`
	Ks      []int    `json:"ks"`
	Summary *Summary `json:"summary"`
}

// Summarize aggregates results across queries. An empty input yields a
// zero summary with empty (non-nil) maps.
func Summarize(results []*QueryResult) *Summary {
	summary := &Summary{
		QueryCount:    len(results),
		MeanRecall:    make(map[int]float64),
		MeanPrecision: make(map[int]float64),
		MeanNDCG:      make(map[int]float64),
	}
	if len(results) == 0 {
		return summary
	}

	for _, r := range results {
		summary.MRR += r.RR
		summary.MAP += r.AP

		for k, v := range r.Recall {
			summary.MeanRecall[k] += v
		}
		for k, v := range r.Precision {
			summary.MeanPrecision[k] += v
		}
		for k, v := range r.NDCG {
			summary.MeanNDCG[k] += v
		}
	}

	n := float64(len(results))
	summary.MRR /= n
	summary.MAP /= n
	for k := range summary.MeanRecall {
		summary.MeanRecall[k] /= n
	}
	for k := range summary.MeanPrecision {
		summary.MeanPrecision[k] /= n
	}
	for k := range summary.MeanNDCG {
		summary.MeanNDCG[k] /= n
	}

	return summary
}

// normalizeKs validates, dedupes and sorts cutoffs, falling back to def.
func normalizeKs(ks, def []int) ([]int, error) {
	if len(ks) == 0 {
		ks = def
	}
	seen := make(map[int]struct{}, len(ks))
	out := make([]int, 0, len(ks))
	for _, k := range ks {
		if k < 1 {
			return nil, errors.ValidationError(fmt.Sprintf("k must be positive, got %d", k))
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Ints(out)
	return out, nil
}

func validateQueries(queries []QueryRun) error {
	seen := make(map[string]struct{}, len(queries))
	for i, q := range queries {
		if q.QueryID == "" {
			return errors.ValidationError("query id is required").WithDetail("index", fmt.Sprintf("%d", i))
		}
		if _, dup := seen[q.QueryID]; dup {
			return errors.ValidationError(fmt.Sprintf("duplicate query id %q", q.QueryID))
		}
		seen[q.QueryID] = struct{}{}
	}
	return nil
}
