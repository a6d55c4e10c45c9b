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
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkpreview/inkpreview/gateway"
	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/internal/notification"
	"github.com/inkpreview/inkpreview/model"
)

var previewTracer = otel.Tracer("inkpreview.previews")

// SubmitPreviewRequest carries everything a preview submission needs after
// transport-level validation.
type SubmitPreviewRequest struct {
	UserID         string
	BodyImageURL   string
	DesignImageURL string
	Part           string
	Variant        string
	Scale          float64
	RotationDeg    float64
	Opacity        float64
	Seed           int64
	CustomPrompt   string
}

// SubmitPreviewResponse is what the submitter gets back immediately; the
// render itself completes asynchronously.
type SubmitPreviewResponse struct {
	JobID            string          `json:"job_id"`
	PredictionID     string          `json:"prediction_id"`
	Status           model.JobStatus `json:"status"`
	CreditsRemaining int64           `json:"credits_remaining"`
}

// SubmitPreview runs the submission pipeline: grant-then-charge on the credit
// ledger, asset registration, prompt derivation, job creation, and hand-off
// to the prediction provider. The credit is consumed before the provider is
// called; if the hand-off fails the job is closed as failed and the charge is
// compensated, exactly once, through the same terminal-claim path the
// reconciler uses.
func (i *InkPreview) SubmitPreview(ctx context.Context, req *SubmitPreviewRequest) (*SubmitPreviewResponse, error) {
	ctx, span := previewTracer.Start(ctx, "SubmitPreview", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("preview.part", req.Part),
	))
	defer span.End()

	if err := i.InitializeCredits(ctx, req.UserID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	balance, consumed, err := i.ConsumeCredit(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !consumed {
		span.AddEvent("Insufficient credits")
		return nil, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Insufficient credits", map[string]interface{}{
			"credits": balance,
		})
	}

	resp, err := i.startPreviewJob(ctx, req, balance)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (i *InkPreview) startPreviewJob(ctx context.Context, req *SubmitPreviewRequest, balance int64) (*SubmitPreviewResponse, error) {
	ctx, span := previewTracer.Start(ctx, "StartPreviewJob")
	defer span.End()

	bodyPhoto, err := i.datasource.UpsertBodyPhoto(ctx, req.UserID, req.Part, req.BodyImageURL)
	if err != nil {
		span.RecordError(err)
		return nil, i.compensateSubmission(ctx, "", req.UserID, err)
	}

	design, err := i.datasource.UpsertDesign(ctx, "Uploaded Design", req.DesignImageURL)
	if err != nil {
		span.RecordError(err)
		return nil, i.compensateSubmission(ctx, "", req.UserID, err)
	}

	prompt := strings.TrimSpace(req.CustomPrompt)
	if prompt == "" {
		prompt = BuildTattooPrompt(model.PromptParams{
			Part:        req.Part,
			Variant:     req.Variant,
			Scale:       req.Scale,
			RotationDeg: req.RotationDeg,
			Opacity:     req.Opacity,
		})
	}

	seed := req.Seed
	if seed == 0 {
		seed = rand.Int63n(1000000)
	}

	job, err := i.datasource.CreatePreviewJob(ctx, &model.PreviewJob{
		UserID:      req.UserID,
		BodyPhotoID: bodyPhoto.BodyPhotoID,
		DesignID:    design.DesignID,
		Status:      model.JobStatusQueued,
		Prompt:      prompt,
		Seed:        seed,
		VariantParams: model.VariantParams{
			Variant:     req.Variant,
			Scale:       req.Scale,
			RotationDeg: req.RotationDeg,
			Opacity:     req.Opacity,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, i.compensateSubmission(ctx, "", req.UserID, err)
	}
	span.SetAttributes(attribute.String("job.id", job.JobID))

	prediction, err := i.gateway.CreatePrediction(ctx, gateway.PredictionInput{
		Prompt:         prompt,
		BodyImageURL:   req.BodyImageURL,
		DesignImageURL: req.DesignImageURL,
	})
	if err != nil {
		span.RecordError(err)
		notification.NotifyError(err)
		return nil, i.compensateSubmission(ctx, job.JobID, req.UserID, err)
	}

	status := model.MapPredictionStatus(prediction.Status)
	if err := i.datasource.AttachPrediction(ctx, job.JobID, prediction.ID, status); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"job_id":        job.JobID,
		"prediction_id": prediction.ID,
		"status":        status,
	}).Info("preview submitted")

	return &SubmitPreviewResponse{
		JobID:            job.JobID,
		PredictionID:     prediction.ID,
		Status:           status,
		CreditsRemaining: balance,
	}, nil
}

// compensateSubmission unwinds a submission that consumed a credit but never
// reached the provider, or was rejected by it. The terminal claim guards the
// refund: whichever path closes the job owns the compensation, so a webhook
// arriving for a job the submitter already closed cannot refund it again.
func (i *InkPreview) compensateSubmission(ctx context.Context, jobID, userID string, cause error) error {
	if jobID != "" {
		claimed, claimErr := i.datasource.ClaimTerminalTransition(ctx, jobID, model.JobStatusFailed, cause.Error())
		if claimErr != nil {
			logrus.WithField("job_id", jobID).WithError(claimErr).Error("failed to close job after submission failure")
		} else if claimed {
			if refundErr := i.RefundCredit(ctx, userID); refundErr != nil {
				notification.NotifyError(refundErr)
			} else if !i.credits.Unlimited {
				if markErr := i.datasource.MarkJobRefunded(ctx, jobID); markErr != nil {
					logrus.WithField("job_id", jobID).WithError(markErr).Error("failed to mark job refunded")
				}
			}
			go func() {
				if err := SendWebhook(NewWebhook{Event: EventPreviewFailed, Payload: map[string]interface{}{"job_id": jobID}}); err != nil {
					notification.NotifyError(err)
				}
			}()
		}
	} else {
		if refundErr := i.RefundCredit(ctx, userID); refundErr != nil {
			notification.NotifyError(refundErr)
		}
	}

	if errors.Is(cause, gateway.ErrBilling) {
		return apierror.NewAPIError(apierror.ErrGatewayBilling,
			"Generation provider has insufficient credits. Please check the provider billing.", nil)
	}
	if errors.Is(cause, gateway.ErrUnavailable) {
		return apierror.NewAPIError(apierror.ErrGatewayUnavailable,
			"Generation provider is unavailable. Please try again shortly.", nil)
	}
	var apiErr apierror.APIError
	if errors.As(cause, &apiErr) {
		return apiErr
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to generate preview: %s", cause.Error()), nil)
}

// ListPreviews returns a page of the user's jobs, newest first.
func (i *InkPreview) ListPreviews(ctx context.Context, userID string, limit, offset int) ([]model.PreviewJob, error) {
	ctx, span := previewTracer.Start(ctx, "ListPreviews", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return i.datasource.GetPreviewJobsByUser(ctx, userID, limit, offset)
}

// CancelPreview asks the provider to stop a running job and closes it
// locally. Cancellation counts as a failure for refund purposes.
func (i *InkPreview) CancelPreview(ctx context.Context, userID, jobID string) (*model.PreviewJob, error) {
	ctx, span := previewTracer.Start(ctx, "CancelPreview")
	defer span.End()

	job, err := i.datasource.GetPreviewJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	if job.PredictionID != "" {
		if err := i.gateway.CancelPrediction(ctx, job.PredictionID); err != nil {
			span.RecordError(err)
			logrus.WithField("job_id", jobID).WithError(err).Warn("provider cancel failed, closing locally")
		}
	}

	if err := i.resolveFailure(ctx, job, "canceled by user"); err != nil {
		return nil, err
	}
	return i.datasource.GetPreviewJob(ctx, jobID)
}
