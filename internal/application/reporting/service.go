package reporting

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// ============================================================================
// External Interfaces (Dependencies)
// ============================================================================

// JobRepository persists report jobs. Get returns ErrCodeReportJobNotFound
// for unknown ids.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// ReportRequested is the message announcing a submitted job.
type ReportRequested struct {
	JobID        uuid.UUID `json:"jobId"`
	EvaluationID uuid.UUID `json:"evaluationId"`
	Format       Format    `json:"format"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// Publisher hands submitted jobs to the worker.
type Publisher interface {
	PublishReportRequested(ctx context.Context, msg ReportRequested) error
}

// ArtifactStore holds rendered final reports.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Indexer makes completed reports searchable. Optional.
type Indexer interface {
	IndexReport(ctx context.Context, job *Job, report *Report) error
}

// ============================================================================
// Service
// ============================================================================

// Service is the report use-case surface shared by the HTTP, gRPC, CLI and
// worker entry points.
type Service interface {
	// Preview builds a report synchronously without persisting anything.
	Preview(ctx context.Context, ev *evaluation.Evaluation) (*Report, error)
	// Submit queues a final report and returns the pending job.
	Submit(ctx context.Context, ev *evaluation.Evaluation, format Format) (*Job, error)
	// Process runs a queued job to completion. Completed jobs are skipped so
	// redelivered messages are harmless; a job left processing by a crashed
	// worker is reclaimed once it has been idle for ServiceDeps.ReclaimAfter.
	Process(ctx context.Context, jobID uuid.UUID) (*Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	// Download streams the artefact of a completed job.
	Download(ctx context.Context, jobID uuid.UUID) (io.ReadCloser, *Job, error)
}

// ServiceDeps groups the collaborators of Service. Indexer may be nil.
//
// ReclaimAfter is how long a processing job must sit untouched before
// Process takes it over. Zero takes it over at once, which is only safe when
// callers already serialise Process per job.
type ServiceDeps struct {
	Builder   *Builder
	Renderer  *Renderer
	Jobs      JobRepository
	Publisher Publisher
	Store     ArtifactStore
	Indexer   Indexer
	Metrics   Metrics
	Logger    logging.Logger
	Clock     func() time.Time

	ReclaimAfter time.Duration
}

type serviceImpl struct {
	builder   *Builder
	renderer  *Renderer
	jobs      JobRepository
	publisher Publisher
	store     ArtifactStore
	indexer   Indexer
	metrics   Metrics
	logger    logging.Logger
	now       func() time.Time

	reclaimAfter time.Duration
}

// NewService wires a Service. Builder, Jobs, Publisher and Store are
// required.
func NewService(d ServiceDeps) Service {
	if d.Builder == nil || d.Jobs == nil || d.Publisher == nil || d.Store == nil {
		panic("nil dependency injected into reporting.Service")
	}
	s := &serviceImpl{
		builder:   d.Builder,
		renderer:  d.Renderer,
		jobs:      d.Jobs,
		publisher: d.Publisher,
		store:     d.Store,
		indexer:   d.Indexer,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Clock,

		reclaimAfter: d.ReclaimAfter,
	}
	if s.renderer == nil {
		s.renderer = NewRenderer()
	}
	if s.metrics == nil {
		s.metrics = d.Builder.metrics
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *serviceImpl) Preview(ctx context.Context, ev *evaluation.Evaluation) (*Report, error) {
	if ev != nil {
		ev.EnsureID()
	}
	return s.builder.Build(ctx, ev, ModePreview)
}

func (s *serviceImpl) Submit(ctx context.Context, ev *evaluation.Evaluation, format Format) (*Job, error) {
	if ev != nil {
		ev.EnsureID()
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatText
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if err := s.builder.checkBatchSize(ev); err != nil {
		return nil, err
	}

	job, err := NewJob(ev, format, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to create report job")
	}
	s.metrics.RecordReportJob(string(JobPending))

	msg := ReportRequested{JobID: job.ID, EvaluationID: job.EvaluationID, Format: job.Format, RequestedAt: job.CreatedAt}
	if err := s.publisher.PublishReportRequested(ctx, msg); err != nil {
		s.logger.Error("failed to publish report request", logging.JobID(job.ID.String()), logging.Err(err))
		if ferr := job.Fail(err, s.now()); ferr == nil {
			if uerr := s.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
				s.logger.Error("failed to record report job failure", logging.JobID(job.ID.String()), logging.Err(uerr))
			}
			s.metrics.RecordReportJob(string(JobFailed))
		}
		return nil, errors.Wrap(err, errors.ErrCodeReportPublishFailed, "failed to enqueue report job").
			WithDetail("job_id=" + job.ID.String())
	}

	s.logger.Info("report job submitted",
		logging.JobID(job.ID.String()),
		logging.String("evaluation_id", job.EvaluationID.String()),
		logging.Int("tests", len(ev.Tests)))
	return job, nil
}

func (s *serviceImpl) Process(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == JobCompleted {
		s.logger.Debug("report job already completed", logging.JobID(jobID.String()))
		return job, nil
	}
	if job.Status == JobProcessing {
		if err := job.Reclaim(s.now(), s.reclaimAfter); err != nil {
			return nil, err
		}
		s.logger.Warn("reclaiming report job left processing",
			logging.JobID(jobID.String()), logging.Int("attempt", job.Attempts))
	} else if err := job.Transition(JobProcessing, s.now()); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to mark report job processing")
	}
	s.metrics.RecordReportJob(string(JobProcessing))

	if err := s.run(ctx, job); err != nil {
		s.logger.Error("report job failed", logging.JobID(jobID.String()), logging.Int("attempt", job.Attempts), logging.Err(err))
		if ferr := job.Fail(err, s.now()); ferr == nil {
			if uerr := s.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
				s.logger.Error("failed to record report job failure", logging.JobID(jobID.String()), logging.Err(uerr))
			}
			s.metrics.RecordReportJob(string(JobFailed))
		}
		return job, err
	}

	if err := job.Transition(JobCompleted, s.now()); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to mark report job completed")
	}
	s.metrics.RecordReportJob(string(JobCompleted))
	s.logger.Info("report job completed", logging.JobID(jobID.String()), logging.String("object_key", job.ObjectKey))
	return job, nil
}

// run builds, renders, stores and indexes the final report of job.
func (s *serviceImpl) run(ctx context.Context, job *Job) error {
	ev, err := job.Evaluation()
	if err != nil {
		return err
	}
	report, err := s.builder.Build(ctx, ev, ModeFinal)
	if err != nil {
		return err
	}
	data, err := s.renderer.RenderBytes(report, job.Format)
	if err != nil {
		return err
	}

	key := ObjectKey(job)
	if err := s.store.Put(ctx, key, data, job.Format.ContentType()); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportArtifactFailed, "failed to store report artefact").WithDetail("key=" + key)
	}
	job.ObjectKey = key

	if s.indexer != nil {
		if err := s.indexer.IndexReport(ctx, job, report); err != nil {
			// The artefact is stored; search lagging behind is recoverable.
			s.logger.Warn("failed to index report", logging.JobID(job.ID.String()), logging.Err(err))
		}
	}
	return nil
}

func (s *serviceImpl) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return s.jobs.Get(ctx, jobID)
}

func (s *serviceImpl) Download(ctx context.Context, jobID uuid.UUID) (io.ReadCloser, *Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != JobCompleted || job.ObjectKey == "" {
		return nil, job, errors.New(errors.ErrCodeReportNotReady, "report is not ready").
			WithDetail("status=" + string(job.Status))
	}
	rc, err := s.store.Get(ctx, job.ObjectKey)
	if err != nil {
		return nil, job, errors.Wrap(err, errors.ErrCodeReportArtifactFailed, "failed to read report artefact")
	}
	return rc, job, nil
}
