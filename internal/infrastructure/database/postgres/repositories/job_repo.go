package repositories

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// pgxDB is the part of *pgxpool.Pool the job repository uses.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const jobColumns = `id, evaluation_id, status, format, object_key, error, attempts, payload, created_at, updated_at`

// JobRepository keeps report jobs in the report_jobs table.
type JobRepository struct {
	db  pgxDB
	log logging.Logger
}

func NewJobRepository(db pgxDB, log logging.Logger) *JobRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &JobRepository{db: db, log: log}
}

var _ reporting.JobRepository = (*JobRepository)(nil)

func (r *JobRepository) Create(ctx context.Context, job *reporting.Job) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO report_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.EvaluationID, string(job.Status), string(job.Format), job.ObjectKey, job.Error,
		job.Attempts, []byte(job.Payload), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.Conflict("report job already exists").WithDetail("job_id=" + job.ID.String())
		}
		r.log.Error("failed to insert report job", logging.JobID(job.ID.String()), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert report job")
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*reporting.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeReportJobNotFound, "report job not found").WithDetail("job_id=" + id.String())
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load report job").WithDetail("job_id=" + id.String())
	}
	return job, nil
}

// Update writes the mutable fields of job. The row is locked first so two
// workers racing on a redelivered message cannot reopen a completed job.
func (r *JobRepository) Update(ctx context.Context, job *reporting.Job) error {
	return postgres.WithTransaction(ctx, r.db, func(tx pgx.Tx, ctx context.Context) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM report_jobs WHERE id = $1 FOR UPDATE`, job.ID).Scan(&current)
		if err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return errors.New(errors.ErrCodeReportJobNotFound, "report job not found").WithDetail("job_id=" + job.ID.String())
			}
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to lock report job")
		}
		if reporting.JobStatus(current) == reporting.JobCompleted && job.Status != reporting.JobCompleted {
			return errors.Conflict("report job already completed").
				WithDetail(fmt.Sprintf("job_id=%s to=%s", job.ID, job.Status))
		}

		_, err = tx.Exec(ctx, `
			UPDATE report_jobs
			SET status = $2, object_key = $3, error = $4, attempts = $5, updated_at = $6
			WHERE id = $1`,
			job.ID, string(job.Status), job.ObjectKey, job.Error, job.Attempts, job.UpdatedAt,
		)
		if err != nil {
			r.log.Error("failed to update report job", logging.JobID(job.ID.String()), logging.Err(err))
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update report job")
		}
		return nil
	})
}

func scanJob(row pgx.Row) (*reporting.Job, error) {
	var (
		job            reporting.Job
		status, format string
		payload        []byte
	)
	err := row.Scan(&job.ID, &job.EvaluationID, &status, &format, &job.ObjectKey, &job.Error,
		&job.Attempts, &payload, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = reporting.JobStatus(status)
	job.Format = reporting.Format(format)
	job.Payload = payload
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
