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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

func TestCreatePreviewJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	job := model.PreviewJob{
		UserID:      gofakeit.UUID(),
		BodyPhotoID: gofakeit.UUID(),
		DesignID:    gofakeit.UUID(),
		Status:      model.JobStatusQueued,
		Prompt:      "apply this tattoo design",
		Seed:        42,
		VariantParams: model.VariantParams{
			Scale:       1.2,
			RotationDeg: 15,
		},
	}

	variantParamsJSON, err := json.Marshal(job.VariantParams)
	assert.NoError(t, err)

	mock.ExpectExec("INSERT INTO preview_jobs").
		WithArgs(sqlmock.AnyArg(), job.UserID, job.BodyPhotoID, job.DesignID, job.Status, job.Prompt, job.Seed, variantParamsJSON, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreatePreviewJob(context.Background(), &job)
	assert.NoError(t, err)
	assert.NotEmpty(t, created.JobID)
	assert.Contains(t, created.JobID, "job_")
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePreviewJob_ForeignKeyViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	job := model.PreviewJob{
		UserID:      gofakeit.UUID(),
		BodyPhotoID: "missing",
		DesignID:    "missing",
		Status:      model.JobStatusQueued,
	}

	mock.ExpectExec("INSERT INTO preview_jobs").
		WillReturnError(&pq.Error{Code: "23503"})

	_, err = ds.CreatePreviewJob(context.Background(), &job)
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func jobRows(job model.PreviewJob) *sqlmock.Rows {
	variantParamsJSON, _ := json.Marshal(job.VariantParams)
	return sqlmock.NewRows([]string{
		"job_id", "user_id", "body_photo_id", "design_id", "status",
		"prediction_id", "prompt", "seed", "variant_params", "error_message",
		"credits_refunded", "created_at",
	}).AddRow(job.JobID, job.UserID, job.BodyPhotoID, job.DesignID, job.Status,
		job.PredictionID, job.Prompt, job.Seed, variantParamsJSON, job.ErrorMessage,
		job.CreditsRefunded, job.CreatedAt)
}

func TestGetPreviewJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	job := model.PreviewJob{
		JobID:        "job_" + gofakeit.UUID(),
		UserID:       gofakeit.UUID(),
		BodyPhotoID:  gofakeit.UUID(),
		DesignID:     gofakeit.UUID(),
		Status:       model.JobStatusRunning,
		PredictionID: gofakeit.UUID(),
		Prompt:       "apply this tattoo design",
		Seed:         7,
		VariantParams: model.VariantParams{
			Scale: 0.8,
		},
		CreatedAt: time.Now(),
	}

	mock.ExpectQuery("SELECT .* FROM preview_jobs").
		WithArgs(job.JobID).
		WillReturnRows(jobRows(job))

	got, err := ds.GetPreviewJob(context.Background(), job.JobID)
	assert.NoError(t, err)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	assert.Equal(t, 0.8, got.VariantParams.Scale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreviewJob_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM preview_jobs").
		WithArgs("job_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetPreviewJob(context.Background(), "job_missing")
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreviewJobByPredictionID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	job := model.PreviewJob{
		JobID:        "job_" + gofakeit.UUID(),
		UserID:       gofakeit.UUID(),
		BodyPhotoID:  gofakeit.UUID(),
		DesignID:     gofakeit.UUID(),
		Status:       model.JobStatusRunning,
		PredictionID: gofakeit.UUID(),
		Prompt:       "apply this tattoo design",
		CreatedAt:    time.Now(),
	}

	mock.ExpectQuery("SELECT .* FROM preview_jobs").
		WithArgs(job.PredictionID).
		WillReturnRows(jobRows(job))

	got, err := ds.GetPreviewJobByPredictionID(context.Background(), job.PredictionID)
	assert.NoError(t, err)
	assert.Equal(t, job.JobID, got.JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTerminalTransition_Claimed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	jobID := "job_" + gofakeit.UUID()

	mock.ExpectQuery("UPDATE preview_jobs").
		WithArgs(jobID, model.JobStatusSucceeded, "", model.JobStatusQueued, model.JobStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

	claimed, err := ds.ClaimTerminalTransition(context.Background(), jobID, model.JobStatusSucceeded, "")
	assert.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTerminalTransition_AlreadyTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	jobID := "job_" + gofakeit.UUID()

	// No row matched: another trigger already resolved the job. Not an error.
	mock.ExpectQuery("UPDATE preview_jobs").
		WithArgs(jobID, model.JobStatusFailed, "model exploded", model.JobStatusQueued, model.JobStatusRunning).
		WillReturnError(sql.ErrNoRows)

	claimed, err := ds.ClaimTerminalTransition(context.Background(), jobID, model.JobStatusFailed, "model exploded")
	assert.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTerminalTransition_RejectsNonTerminalStatus(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	_, err = ds.ClaimTerminalTransition(context.Background(), "job_1", model.JobStatusRunning, "")
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
}

func TestMarkJobRunning_OnlyFromQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	jobID := "job_" + gofakeit.UUID()

	mock.ExpectExec("UPDATE preview_jobs").
		WithArgs(jobID, model.JobStatusRunning, model.JobStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.MarkJobRunning(context.Background(), jobID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobRefunded(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	jobID := "job_" + gofakeit.UUID()

	mock.ExpectExec("UPDATE preview_jobs").
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.MarkJobRefunded(context.Background(), jobID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreviewJobsByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	userID := gofakeit.UUID()

	rows := sqlmock.NewRows([]string{
		"job_id", "user_id", "body_photo_id", "design_id", "status",
		"prediction_id", "prompt", "seed", "variant_params", "error_message",
		"credits_refunded", "created_at",
	}).
		AddRow("job_1", userID, "bp_1", "dsn_1", model.JobStatusSucceeded, "pred_1", "p", int64(1), []byte("{}"), "", false, time.Now()).
		AddRow("job_2", userID, "bp_1", "dsn_2", model.JobStatusFailed, "pred_2", "p", int64(2), []byte("{}"), "boom", true, time.Now())

	mock.ExpectQuery("SELECT .* FROM preview_jobs").
		WithArgs(userID, 20, 0).
		WillReturnRows(rows)

	jobs, err := ds.GetPreviewJobsByUser(context.Background(), userID, 20, 0)
	assert.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, "job_1", jobs[0].JobID)
	assert.True(t, jobs[1].CreditsRefunded)
	assert.NoError(t, mock.ExpectationsWereMet())
}
