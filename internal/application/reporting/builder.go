package reporting

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// Metrics is the subset of application metrics recorded by this package.
type Metrics interface {
	RecordClassification(section, rule string)
	RecordNormInference(category string)
	RecordReportBuild(mode string, d time.Duration)
	RecordReportJob(status string)
	RecordCitationCache(hit bool)
	RecordCitationLookup(source string, d time.Duration)
}

// Builder assembles reports. It holds no per-report state and is safe for
// concurrent use.
type Builder struct {
	resolver     citation.Resolver
	workers      int
	maxBatchSize int
	metrics      Metrics
	logger       logging.Logger
	now          func() time.Time
}

type BuilderOption func(*Builder)

// WithWorkers bounds the engine and citation fan-out; <= 0 means GOMAXPROCS.
func WithWorkers(n int) BuilderOption { return func(b *Builder) { b.workers = n } }

// WithMaxBatchSize rejects evaluations with more than n tests; 0 disables.
func WithMaxBatchSize(n int) BuilderOption { return func(b *Builder) { b.maxBatchSize = n } }

func WithMetrics(m Metrics) BuilderOption { return func(b *Builder) { b.metrics = m } }

func WithLogger(l logging.Logger) BuilderOption { return func(b *Builder) { b.logger = l } }

func WithClock(now func() time.Time) BuilderOption { return func(b *Builder) { b.now = now } }

// NewBuilder creates a Builder that resolves citations through resolver.
func NewBuilder(resolver citation.Resolver, opts ...BuilderOption) *Builder {
	if resolver == nil {
		panic("nil citation resolver injected into reporting.Builder")
	}
	b := &Builder{
		resolver: resolver,
		metrics:  prometheus.NewNoopAppMetrics(),
		logger:   logging.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the report for ev. Preview and final builds share this path
// so the two can never disagree on placement or norms.
func (b *Builder) Build(ctx context.Context, ev *evaluation.Evaluation, mode Mode) (*Report, error) {
	start := time.Now()
	if !mode.Valid() {
		return nil, errors.InvalidParam("unknown report mode").WithDetail("mode=" + string(mode))
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkBatchSize(ev); err != nil {
		return nil, err
	}

	records := ev.Records()
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.TestName
	}

	decisions, err := fce.ExplainAll(ctx, records, b.workers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBatchCancelled, "classification cancelled")
	}
	norms, err := fce.InferAll(ctx, names, b.workers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBatchCancelled, "norm inference cancelled")
	}
	cites, err := b.resolveAll(ctx, ev.TestIDs())
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(ev.Tests))
	for i, t := range ev.Tests {
		entries[i] = Entry{
			Test:       t.TestRecord,
			Section:    decisions[i].Section,
			RuleID:     decisions[i].RuleID,
			Norms:      norms[i],
			Observed:   t.Observed,
			Comparison: FormatComparison(norms[i]),
			Result:     FormatMeasurement(t.Observed),
		}
		for _, c := range cites[t.TestID] {
			entries[i].CitationIDs = append(entries[i].CitationIDs, c.ID)
		}
		b.metrics.RecordClassification(decisions[i].Section.String(), decisions[i].RuleID)
		b.metrics.RecordNormInference(string(norms[i].Category))
	}

	groups := fce.Partition(entries, func(e Entry) fce.Section { return e.Section })
	report := &Report{
		EvaluationID: ev.ID,
		Subject:      ev.Subject,
		Examiner:     ev.Examiner,
		PerformedAt:  ev.PerformedAt,
		Mode:         mode,
		GeneratedAt:  b.now().UTC(),
		Sections:     make([]SectionBlock, len(groups)),
		References:   []*citation.Citation{},
	}
	for i, g := range groups {
		report.Sections[i] = SectionBlock{Section: g.Section, Entries: g.Items}
	}
	report.References = bibliography(report, cites)

	b.metrics.RecordReportBuild(string(mode), time.Since(start))
	b.logger.Debug("report built",
		logging.String("evaluation_id", ev.ID.String()),
		logging.String("mode", string(mode)),
		logging.Int("entries", len(entries)),
		logging.Int("references", len(report.References)),
		logging.Duration("took", time.Since(start)))
	return report, nil
}

func (b *Builder) checkBatchSize(ev *evaluation.Evaluation) error {
	if b.maxBatchSize > 0 && len(ev.Tests) > b.maxBatchSize {
		return errors.New(errors.ErrCodeBatchTooLarge, "too many tests in one evaluation").
			WithDetail(fmt.Sprintf("id=%s tests=%d max=%d", ev.ID, len(ev.Tests), b.maxBatchSize))
	}
	return nil
}

// resolveAll looks up citations for every distinct test id concurrently.
func (b *Builder) resolveAll(ctx context.Context, testIDs []string) (map[string][]*citation.Citation, error) {
	results := make([][]*citation.Citation, len(testIDs))
	g, gctx := errgroup.WithContext(ctx)
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}
	for i, id := range testIDs {
		i, id := i, id
		g.Go(func() error {
			cites, err := b.resolver.Resolve(gctx, id)
			if err != nil {
				return errors.Wrap(err, errors.CodeUnknown, "failed to resolve citations").WithDetail("test_id=" + id)
			}
			results[i] = cites
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*citation.Citation, len(testIDs))
	for i, id := range testIDs {
		out[id] = results[i]
	}
	return out, nil
}

// bibliography lists each cited source once, in the order it is first cited
// when reading the report top to bottom.
func bibliography(r *Report, cites map[string][]*citation.Citation) []*citation.Citation {
	seen := make(map[string]struct{})
	refs := []*citation.Citation{}
	for _, s := range r.Sections {
		for _, e := range s.Entries {
			for _, c := range cites[e.Test.TestID] {
				if _, ok := seen[c.ID]; ok {
					continue
				}
				seen[c.ID] = struct{}{}
				refs = append(refs, c)
			}
		}
	}
	return refs
}
