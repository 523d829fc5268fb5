package cli

import (
	"context"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/client"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// Backend answers the commands that work both in-process and against a
// server. Results are always in input order.
type Backend interface {
	Classify(ctx context.Context, records []fce.TestRecord) ([]fce.Decision, error)
	InferNorms(ctx context.Context, names []string) ([]fce.NormInfo, error)
	Group(ctx context.Context, records []fce.TestRecord) ([]fce.Group[fce.TestRecord], error)
	Rules(ctx context.Context) ([]client.RuleInfo, error)
	Preview(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) ([]byte, error)
	Citations(ctx context.Context, testID string) ([]*citation.Citation, error)
}

// localBackend runs the engine and the report builder in-process against the
// built-in citation catalog.
type localBackend struct {
	workers  int
	catalog  *citation.Catalog
	builder  *reporting.Builder
	renderer *reporting.Renderer
}

// NewLocalBackend builds a backend that needs no server.
func NewLocalBackend(cfg config.EngineConfig, logger logging.Logger) Backend {
	catalog := citation.MustBuiltin()
	return &localBackend{
		workers: cfg.Workers,
		catalog: catalog,
		builder: reporting.NewBuilder(catalog,
			reporting.WithWorkers(cfg.Workers),
			reporting.WithMaxBatchSize(cfg.MaxBatchSize),
			reporting.WithLogger(logger),
		),
		renderer: reporting.NewRenderer(),
	}
}

func (b *localBackend) Classify(ctx context.Context, records []fce.TestRecord) ([]fce.Decision, error) {
	return fce.ExplainAll(ctx, records, b.workers)
}

func (b *localBackend) InferNorms(ctx context.Context, names []string) ([]fce.NormInfo, error) {
	return fce.InferAll(ctx, names, b.workers)
}

func (b *localBackend) Group(ctx context.Context, records []fce.TestRecord) ([]fce.Group[fce.TestRecord], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fce.GroupBySection(records), nil
}

func (b *localBackend) Rules(context.Context) ([]client.RuleInfo, error) {
	rules := fce.Rules()
	out := make([]client.RuleInfo, len(rules))
	for i, r := range rules {
		out[i] = client.RuleInfo{Order: i + 1, ID: r.ID, Description: r.Description}
	}
	return out, nil
}

func (b *localBackend) Preview(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) ([]byte, error) {
	rep, err := b.builder.Build(ctx, ev, reporting.ModePreview)
	if err != nil {
		return nil, err
	}
	return b.renderer.RenderBytes(rep, format)
}

func (b *localBackend) Citations(ctx context.Context, testID string) ([]*citation.Citation, error) {
	return b.catalog.Resolve(ctx, testID)
}

// remoteBackend forwards every call to an API server.
type remoteBackend struct {
	c *client.Client
}

// NewRemoteBackend wraps an SDK client.
func NewRemoteBackend(c *client.Client) Backend {
	return &remoteBackend{c: c}
}

func (b *remoteBackend) Classify(ctx context.Context, records []fce.TestRecord) ([]fce.Decision, error) {
	res, err := b.c.Classify(ctx, records)
	if err != nil {
		return nil, err
	}
	out := make([]fce.Decision, len(res))
	for i, r := range res {
		out[i] = r.Decision()
	}
	return out, nil
}

func (b *remoteBackend) InferNorms(ctx context.Context, names []string) ([]fce.NormInfo, error) {
	res, err := b.c.InferNorms(ctx, names...)
	if err != nil {
		return nil, err
	}
	out := make([]fce.NormInfo, len(res))
	for i, r := range res {
		out[i] = r.Norms
	}
	return out, nil
}

func (b *remoteBackend) Group(ctx context.Context, records []fce.TestRecord) ([]fce.Group[fce.TestRecord], error) {
	return b.c.Group(ctx, records)
}

func (b *remoteBackend) Rules(ctx context.Context) ([]client.RuleInfo, error) {
	return b.c.Rules(ctx)
}

func (b *remoteBackend) Preview(ctx context.Context, ev *evaluation.Evaluation, format reporting.Format) ([]byte, error) {
	return b.c.RenderPreview(ctx, ev, format)
}

func (b *remoteBackend) Citations(ctx context.Context, testID string) ([]*citation.Citation, error) {
	views, err := b.c.Citations(ctx, testID)
	if err != nil {
		return nil, err
	}
	out := make([]*citation.Citation, len(views))
	for i := range views {
		out[i] = &views[i].Citation
	}
	return out, nil
}
