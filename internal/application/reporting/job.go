package reporting

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// JobStatus is the lifecycle state of an asynchronous report.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// jobTransitions lists the legal moves. failed → processing is a retry.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobFailed},
	JobProcessing: {JobCompleted, JobFailed},
	JobFailed:     {JobProcessing},
}

// Terminal reports whether no further work will happen without a retry.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job tracks one final report from submission to stored artefact.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	EvaluationID uuid.UUID       `json:"evaluationId"`
	Status       JobStatus       `json:"status"`
	Format       Format          `json:"format"`
	ObjectKey    string          `json:"objectKey,omitempty"`
	Error        string          `json:"error,omitempty"`
	Attempts     int             `json:"attempts"`
	Payload      json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewJob snapshots ev into a pending job.
func NewJob(ev *evaluation.Evaluation, format Format, now time.Time) (*Job, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode evaluation")
	}
	now = now.UTC()
	return &Job{
		ID:           uuid.New(),
		EvaluationID: ev.ID,
		Status:       JobPending,
		Format:       format,
		Payload:      payload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Evaluation decodes the evaluation snapshot taken at submission.
func (j *Job) Evaluation() (*evaluation.Evaluation, error) {
	var ev evaluation.Evaluation
	if err := json.Unmarshal(j.Payload, &ev); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode job payload").
			WithDetail("job_id=" + j.ID.String())
	}
	return &ev, nil
}

// Transition moves the job to status, rejecting illegal moves.
func (j *Job) Transition(to JobStatus, now time.Time) error {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.UpdatedAt = now.UTC()
			if to == JobProcessing {
				j.Attempts++
				j.Error = ""
			}
			return nil
		}
	}
	return errors.Conflict("illegal report job transition").
		WithDetail(fmt.Sprintf("job_id=%s from=%s to=%s", j.ID, j.Status, to))
}

// Reclaim restarts a processing job whose owner stopped touching it at
// least staleAfter ago, counting a new attempt. A job still inside the
// window reports ErrCodeReportInProgress.
func (j *Job) Reclaim(now time.Time, staleAfter time.Duration) error {
	if j.Status != JobProcessing {
		return errors.Conflict("only processing report jobs can be reclaimed").
			WithDetail(fmt.Sprintf("job_id=%s status=%s", j.ID, j.Status))
	}
	if idle := now.Sub(j.UpdatedAt); idle < staleAfter {
		return errors.New(errors.ErrCodeReportInProgress, "report job is being processed").
			WithDetail(fmt.Sprintf("job_id=%s idle=%s", j.ID, idle.Round(time.Second)))
	}
	j.UpdatedAt = now.UTC()
	j.Attempts++
	j.Error = ""
	return nil
}

// Fail records cause and moves the job to failed.
func (j *Job) Fail(cause error, now time.Time) error {
	if err := j.Transition(JobFailed, now); err != nil {
		return err
	}
	j.Error = failureText(cause)
	return nil
}

// failureText joins the messages of err and its causes, skipping any already
// contained in the text so far.
func failureText(err error) string {
	msg := err.Error()
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		if s := cause.Error(); !strings.Contains(msg, s) {
			msg += ": " + s
		}
	}
	return msg
}

// ObjectKey is where the artefact of job is stored.
func ObjectKey(j *Job) string {
	return fmt.Sprintf("reports/%s/%s%s", j.EvaluationID, j.ID, j.Format.Extension())
}
