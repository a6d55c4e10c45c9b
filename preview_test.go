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

package inkpreview

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/inkpreview/inkpreview/gateway"
	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

func submitRequest(userID string) *SubmitPreviewRequest {
	return &SubmitPreviewRequest{
		UserID:         userID,
		BodyImageURL:   "https://cdn.example/body.jpg",
		DesignImageURL: "https://cdn.example/design.png",
		Part:           "forearm",
		Variant:        VariantBlackGray,
		Scale:          1.0,
		Opacity:        1.0,
	}
}

func expectSubmissionPrelude(mock sqlmock.Sqlmock, userID string, balanceAfterCharge int64) {
	mock.ExpectExec("INSERT INTO user_credits").
		WithArgs(userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE user_credits").
		WithArgs(userID, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(balanceAfterCharge))
	mock.ExpectQuery("INSERT INTO body_photos").
		WillReturnRows(sqlmock.NewRows([]string{"body_photo_id", "part", "created_at"}).
			AddRow("bdy_1", "forearm", time.Now()))
	mock.ExpectQuery("INSERT INTO designs").
		WillReturnRows(sqlmock.NewRows([]string{"design_id", "title", "created_at"}).
			AddRow("dsn_1", "Uploaded Design", time.Now()))
	mock.ExpectExec("INSERT INTO preview_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestSubmitPreview_Success(t *testing.T) {
	core, mock, gw := newTestCore(t, nil)
	userID := gofakeit.UUID()

	expectSubmissionPrelude(mock, userID, 2)
	mock.ExpectExec("UPDATE preview_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw.CreateFunc = func(_ context.Context, input gateway.PredictionInput) (*gateway.Prediction, error) {
		assert.Contains(t, input.Prompt, "black and grey tattoo")
		assert.Equal(t, "https://cdn.example/body.jpg", input.BodyImageURL)
		return &gateway.Prediction{ID: "pred_1", Status: model.PredictionStarting}, nil
	}

	resp, err := core.SubmitPreview(context.Background(), submitRequest(userID))
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "pred_1", resp.PredictionID)
	assert.Equal(t, model.JobStatusRunning, resp.Status)
	assert.Equal(t, int64(2), resp.CreditsRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPreview_CustomPromptWins(t *testing.T) {
	core, mock, gw := newTestCore(t, nil)
	userID := gofakeit.UUID()

	expectSubmissionPrelude(mock, userID, 2)
	mock.ExpectExec("UPDATE preview_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw.CreateFunc = func(_ context.Context, input gateway.PredictionInput) (*gateway.Prediction, error) {
		assert.Equal(t, "my own words", input.Prompt)
		return &gateway.Prediction{ID: "pred_custom", Status: model.PredictionStarting}, nil
	}

	req := submitRequest(userID)
	req.CustomPrompt = "  my own words  "
	_, err := core.SubmitPreview(context.Background(), req)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPreview_InsufficientCredits(t *testing.T) {
	core, mock, _ := newTestCore(t, nil)
	userID := gofakeit.UUID()

	mock.ExpectExec("INSERT INTO user_credits").
		WithArgs(userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE user_credits").
		WithArgs(userID, int64(1)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT credits FROM user_credits").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(0)))

	_, err := core.SubmitPreview(context.Background(), submitRequest(userID))
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInsufficientCredits, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPreview_GatewayFailureRefunds(t *testing.T) {
	core, mock, gw := newTestCore(t, nil)
	userID := gofakeit.UUID()

	expectSubmissionPrelude(mock, userID, 0)

	// Gateway rejection closes the job and returns the charge.
	mock.ExpectQuery("UPDATE preview_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO user_credits").
		WithArgs(userID, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE preview_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw.CreateFunc = func(_ context.Context, _ gateway.PredictionInput) (*gateway.Prediction, error) {
		return nil, errors.New("network down")
	}

	_, err := core.SubmitPreview(context.Background(), submitRequest(userID))
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPreview_BillingErrorClassified(t *testing.T) {
	core, mock, gw := newTestCore(t, nil)
	userID := gofakeit.UUID()

	expectSubmissionPrelude(mock, userID, 2)
	mock.ExpectQuery("UPDATE preview_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO user_credits").
		WithArgs(userID, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(3)))
	mock.ExpectExec("UPDATE preview_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw.CreateFunc = func(_ context.Context, _ gateway.PredictionInput) (*gateway.Prediction, error) {
		return nil, errors.Wrap(gateway.ErrBilling, "insufficient credit")
	}

	_, err := core.SubmitPreview(context.Background(), submitRequest(userID))
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrGatewayBilling, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
