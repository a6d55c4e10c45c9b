/*
Copyright 2025 Inkpreview Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

const previewJobColumns = `
	job_id, user_id, body_photo_id, design_id, status,
	COALESCE(prediction_id, '') as prediction_id, prompt, COALESCE(seed, 0) as seed,
	variant_params, COALESCE(error_message, '') as error_message, credits_refunded, created_at
`

func scanPreviewJob(row interface{ Scan(...interface{}) error }) (*model.PreviewJob, error) {
	job := model.PreviewJob{}
	var variantParamsJSON []byte

	err := row.Scan(&job.JobID, &job.UserID, &job.BodyPhotoID, &job.DesignID, &job.Status,
		&job.PredictionID, &job.Prompt, &job.Seed, &variantParamsJSON,
		&job.ErrorMessage, &job.CreditsRefunded, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(variantParamsJSON) > 0 {
		if err := json.Unmarshal(variantParamsJSON, &job.VariantParams); err != nil {
			return nil, err
		}
	}

	return &job, nil
}

// CreatePreviewJob records a new job. The caller supplies status queued; the
// row never comes into existence in any other state.
func (d Datasource) CreatePreviewJob(ctx context.Context, job *model.PreviewJob) (*model.PreviewJob, error) {
	if job.JobID == "" {
		job.JobID = GenerateUUIDWithSuffix("job")
	}
	job.CreatedAt = time.Now()

	variantParamsJSON, err := json.Marshal(job.VariantParams)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal variant params", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO preview_jobs (job_id, user_id, body_photo_id, design_id, status, prompt, seed, variant_params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.JobID, job.UserID, job.BodyPhotoID, job.DesignID, job.Status, job.Prompt, job.Seed, variantParamsJSON, job.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Job with this ID already exists", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Job references an unknown photo or design", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create preview job", err)
	}

	return job, nil
}

// GetPreviewJob retrieves a job by its ID.
func (d Datasource) GetPreviewJob(ctx context.Context, jobID string) (*model.PreviewJob, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+previewJobColumns+`
		FROM preview_jobs
		WHERE job_id = $1
	`, jobID)

	job, err := scanPreviewJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve preview job", err)
	}
	return job, nil
}

// GetPreviewJobByPredictionID retrieves the job correlated with an external
// prediction. Webhook deliveries are looked up this way.
func (d Datasource) GetPreviewJobByPredictionID(ctx context.Context, predictionID string) (*model.PreviewJob, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+previewJobColumns+`
		FROM preview_jobs
		WHERE prediction_id = $1
	`, predictionID)

	job, err := scanPreviewJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No job found for prediction", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve preview job", err)
	}
	return job, nil
}

// AttachPrediction stores the external prediction ID and the mapped initial
// status once the gateway has accepted the job.
func (d Datasource) AttachPrediction(ctx context.Context, jobID, predictionID string, status model.JobStatus) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE preview_jobs
		SET prediction_id = $2, status = $3
		WHERE job_id = $1
	`, jobID, predictionID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to attach prediction", err)
	}
	return nil
}

// MarkJobRunning moves a queued job to running. Jobs in any other state are
// left untouched; the provider can report a job running after it already
// finished and that report must not resurrect it.
func (d Datasource) MarkJobRunning(ctx context.Context, jobID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE preview_jobs
		SET status = $2
		WHERE job_id = $1 AND status = $3
	`, jobID, model.JobStatusRunning, model.JobStatusQueued)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job running", err)
	}
	return nil
}

// ClaimTerminalTransition atomically moves a job from a non-terminal state to
// the given terminal state. Both reconciliation triggers funnel through this
// single conditional update; the caller that gets claimed=true owns the
// side effects of the transition (result insertion, refund). A false return
// with no error means another caller already resolved the job.
func (d Datasource) ClaimTerminalTransition(ctx context.Context, jobID string, to model.JobStatus, errorMessage string) (bool, error) {
	if !to.IsTerminal() {
		return false, apierror.NewAPIError(apierror.ErrBadRequest, "Claimed status must be terminal", nil)
	}

	var claimed bool
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE preview_jobs
		SET status = $2, error_message = NULLIF($3, '')
		WHERE job_id = $1 AND status IN ($4, $5)
		RETURNING true
	`, jobID, to, errorMessage, model.JobStatusQueued, model.JobStatusRunning).Scan(&claimed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim terminal transition", err)
	}
	return claimed, nil
}

// MarkJobRefunded records that the compensating refund for this job's failure
// has been applied, making it observable to later polls.
func (d Datasource) MarkJobRefunded(ctx context.Context, jobID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE preview_jobs
		SET credits_refunded = TRUE
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job refunded", err)
	}
	return nil
}

// GetPreviewJobsByUser lists a user's jobs, newest first.
func (d Datasource) GetPreviewJobsByUser(ctx context.Context, userID string, limit, offset int) ([]model.PreviewJob, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+previewJobColumns+`
		FROM preview_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve preview jobs", err)
	}
	defer rows.Close()

	jobs := []model.PreviewJob{}
	for rows.Next() {
		job, err := scanPreviewJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan preview job", err)
		}
		jobs = append(jobs, *job)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}

	return jobs, nil
}
