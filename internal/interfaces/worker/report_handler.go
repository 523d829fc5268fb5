// Package worker holds the Kafka message handlers run by cmd/worker.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

const (
	defaultProcessTimeout = 5 * time.Minute
	lockPrefix            = "report-job:"
)

// Outcome labels recorded per handled message.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeRetry     = "retry"
	OutcomeRejected  = "rejected"
)

// Processor runs one report job to completion.
type Processor interface {
	Process(ctx context.Context, jobID uuid.UUID) (*reporting.Job, error)
}

// ReportHandler turns fce.report.requested events into Process calls.
type ReportHandler struct {
	processor Processor
	locker    redis.Locker
	timeout   time.Duration
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// ReportHandlerOption configures a ReportHandler.
type ReportHandlerOption func(*ReportHandler)

// WithLocker serialises processing of the same job across worker replicas.
func WithLocker(l redis.Locker) ReportHandlerOption {
	return func(h *ReportHandler) { h.locker = l }
}

// WithProcessTimeout bounds a single Process call.
func WithProcessTimeout(d time.Duration) ReportHandlerOption {
	return func(h *ReportHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) ReportHandlerOption {
	return func(h *ReportHandler) {
		if m != nil {
			h.metrics = m
		}
	}
}

func NewReportHandler(p Processor, logger logging.Logger, opts ...ReportHandlerOption) *ReportHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &ReportHandler{
		processor: p,
		timeout:   defaultProcessTimeout,
		metrics:   prometheus.NewNoopAppMetrics(),
		logger:    logger.Named("report-worker"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements kafka.MessageHandler. Errors wrapped with
// kafka.Permanent go straight to the dead-letter topic; anything else is
// retried by the consumer.
func (h *ReportHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	req, err := kafka.DecodeReportRequested(msg)
	if err != nil {
		h.metrics.RecordWorkerMessage(OutcomeRejected)
		return kafka.Permanent(err)
	}
	if req.JobID == uuid.Nil {
		h.metrics.RecordWorkerMessage(OutcomeRejected)
		return kafka.Permanent(errors.Validation("report request without job id"))
	}
	jobID := logging.JobID(req.JobID.String())

	if h.locker != nil {
		mu := h.locker.NewMutex(lockPrefix+req.JobID.String(), redis.WithLockTTL(h.timeout+30*time.Second))
		ok, err := mu.TryLock(ctx)
		if err != nil {
			h.metrics.RecordWorkerMessage(OutcomeRetry)
			return err
		}
		if !ok {
			h.logger.Info("report job held by another worker", jobID)
			h.metrics.RecordWorkerMessage(OutcomeSkipped)
			return nil
		}
		defer func() {
			if uerr := mu.Unlock(context.WithoutCancel(ctx)); uerr != nil {
				h.logger.Warn("failed to release report job lock", jobID, logging.Err(uerr))
			}
		}()
	}

	pctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	job, err := h.processor.Process(pctx, req.JobID)
	if err != nil {
		if isPermanent(err) {
			h.logger.Warn("report job rejected", jobID, logging.Err(err))
			h.metrics.RecordWorkerMessage(OutcomeRejected)
			return kafka.Permanent(err)
		}
		h.metrics.RecordWorkerMessage(OutcomeRetry)
		return err
	}

	h.logger.Info("report job processed", jobID,
		logging.String("status", string(job.Status)),
		logging.Duration("duration", time.Since(start)))
	h.metrics.RecordWorkerMessage(OutcomeCompleted)
	return nil
}

// isPermanent reports errors that another attempt cannot fix. A conflict
// means the job sits in a state Process refuses to leave; a job another
// worker is still processing is retried until it completes or goes stale.
func isPermanent(err error) bool {
	return errors.IsNotFound(err) || errors.IsValidation(err) || errors.IsConflict(err)
}
