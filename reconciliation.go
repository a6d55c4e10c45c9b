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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkpreview/inkpreview/gateway"
	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/internal/notification"
	"github.com/inkpreview/inkpreview/model"
)

var reconciliationTracer = otel.Tracer("inkpreview.reconciliation")

// PreviewStatus is the poll response: the job and whatever artifacts exist so
// far.
type PreviewStatus struct {
	Job             *model.PreviewJob     `json:"job"`
	Results         []model.PreviewResult `json:"results"`
	CreditsRefunded bool                  `json:"credits_refunded"`
}

// GetPreviewStatus reads a job and, when it is still open and correlated with
// a prediction, reconciles it against the provider before answering. A
// provider read failure degrades to the stored state; polling never fails
// because the provider flaked.
func (i *InkPreview) GetPreviewStatus(ctx context.Context, userID, jobID string) (*PreviewStatus, error) {
	ctx, span := reconciliationTracer.Start(ctx, "GetPreviewStatus", trace.WithAttributes(
		attribute.String("job.id", jobID),
	))
	defer span.End()

	job, err := i.datasource.GetPreviewJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", nil)
	}

	if !job.Status.IsTerminal() && job.PredictionID != "" {
		prediction, predErr := i.fetchPrediction(ctx, job.PredictionID)
		if predErr != nil {
			span.RecordError(predErr)
			logrus.WithField("job_id", job.JobID).WithError(predErr).Warn("provider read failed, serving stored state")
		} else if err := i.applyPredictionOutcome(ctx, job, prediction); err != nil {
			return nil, err
		}

		job, err = i.datasource.GetPreviewJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
	}

	results, err := i.datasource.GetResultsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &PreviewStatus{Job: job, Results: results, CreditsRefunded: job.CreditsRefunded}, nil
}

// fetchPrediction reads a prediction from the provider, caching each read for
// a few seconds so a fast-polling client does not turn into a request storm
// against the provider. Cache failures fall through to a direct read.
func (i *InkPreview) fetchPrediction(ctx context.Context, predictionID string) (*gateway.Prediction, error) {
	cacheKey := "prediction:" + predictionID

	if i.cache != nil {
		var cached gateway.Prediction
		if err := i.cache.Get(ctx, cacheKey, &cached); err == nil && cached.ID != "" {
			return &cached, nil
		}
	}

	prediction, err := i.gateway.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}

	if i.cache != nil {
		if err := i.cache.Set(ctx, cacheKey, prediction, 3*time.Second); err != nil {
			logrus.WithError(err).Debug("failed to cache prediction read")
		}
	}
	return prediction, nil
}

// HandlePredictionUpdate is the webhook trigger. The provider's payload is
// correlated back to a job through the prediction ID and folded in through
// the same outcome path polling uses.
func (i *InkPreview) HandlePredictionUpdate(ctx context.Context, prediction *gateway.Prediction) error {
	ctx, span := reconciliationTracer.Start(ctx, "HandlePredictionUpdate", trace.WithAttributes(
		attribute.String("prediction.id", prediction.ID),
	))
	defer span.End()

	if prediction.ID == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Invalid webhook data", nil)
	}

	job, err := i.datasource.GetPreviewJobByPredictionID(ctx, prediction.ID)
	if err != nil {
		logrus.WithField("prediction_id", prediction.ID).Warn("no job found for prediction")
		return err
	}

	return i.applyPredictionOutcome(ctx, job, prediction)
}

// applyPredictionOutcome folds a provider-side observation into the job. Both
// reconciliation triggers end up here, concurrently at times; every state
// change it makes is conditional, so replays and races collapse into no-ops.
func (i *InkPreview) applyPredictionOutcome(ctx context.Context, job *model.PreviewJob, prediction *gateway.Prediction) error {
	ctx, span := reconciliationTracer.Start(ctx, "ApplyPredictionOutcome", trace.WithAttributes(
		attribute.String("job.id", job.JobID),
		attribute.String("prediction.status", string(prediction.Status)),
	))
	defer span.End()

	switch model.MapPredictionStatus(prediction.Status) {
	case model.JobStatusRunning:
		return i.datasource.MarkJobRunning(ctx, job.JobID)

	case model.JobStatusSucceeded:
		// A success report with no artifact is treated as still running;
		// the artifact arrives on a later observation.
		if len(prediction.Output) == 0 {
			return i.datasource.MarkJobRunning(ctx, job.JobID)
		}
		return i.resolveSuccess(ctx, job, prediction.Output)

	case model.JobStatusFailed:
		message := string(prediction.Error)
		if message == "" {
			message = "prediction " + string(prediction.Status)
		}
		if model.IsUnreachableAssetError(message) {
			// The provider never fetched the inputs, typically a localhost
			// deployment. Closed without compensation so a retry loop on an
			// unreachable deployment cannot mint credits.
			span.AddEvent("Inputs unreachable by provider")
			_, err := i.datasource.ClaimTerminalTransition(ctx, job.JobID, model.JobStatusFailed, model.UnreachableAssetMessage)
			return err
		}
		return i.resolveFailure(ctx, job, message)
	}

	return nil
}

// resolveSuccess closes the job as succeeded and stores its artifacts. The
// artifact writes are keyed inserts, so the loser of the terminal claim
// re-inserting them changes nothing.
func (i *InkPreview) resolveSuccess(ctx context.Context, job *model.PreviewJob, output gateway.Output) error {
	claimed, err := i.datasource.ClaimTerminalTransition(ctx, job.JobID, model.JobStatusSucceeded, "")
	if err != nil {
		return err
	}

	if !claimed {
		// The job is already terminal. Artifacts are only backfilled when
		// that terminal state is succeeded (poll and webhook racing over the
		// same success); a job closed as failed and refunded stays
		// artifact-free no matter what a late success delivery claims.
		current, err := i.datasource.GetPreviewJob(ctx, job.JobID)
		if err != nil {
			return err
		}
		if current.Status != model.JobStatusSucceeded {
			logrus.WithFields(logrus.Fields{
				"job_id": job.JobID,
				"status": current.Status,
			}).Warn("late success report for a job closed otherwise, dropping artifacts")
			return nil
		}
	}

	for _, imageURL := range output {
		if imageURL == "" {
			continue
		}
		_, _, err := i.datasource.InsertResultIfAbsent(ctx, &model.PreviewResult{
			JobID:    job.JobID,
			ImageURL: imageURL,
			ThumbURL: imageURL,
			Width:    1024,
			Height:   1024,
		})
		if err != nil {
			return err
		}
	}

	if claimed {
		logrus.WithFields(logrus.Fields{
			"job_id":  job.JobID,
			"results": len(output),
		}).Info("preview succeeded")
		go func() {
			if err := SendWebhook(NewWebhook{Event: EventPreviewSucceeded, Payload: map[string]interface{}{
				"job_id":  job.JobID,
				"user_id": job.UserID,
			}}); err != nil {
				notification.NotifyError(err)
			}
		}()
	}
	return nil
}

// resolveFailure closes the job as failed and compensates the charge. The
// refund hangs off the terminal claim: only the caller that actually moved
// the job into failed applies it, so a poll and a webhook racing over the
// same failure produce exactly one refund.
func (i *InkPreview) resolveFailure(ctx context.Context, job *model.PreviewJob, message string) error {
	claimed, err := i.datasource.ClaimTerminalTransition(ctx, job.JobID, model.JobStatusFailed, message)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"error":  message,
	}).Info("preview failed")

	if err := i.RefundCredit(ctx, job.UserID); err != nil {
		notification.NotifyError(err)
		return err
	}
	if !i.credits.Unlimited {
		if err := i.datasource.MarkJobRefunded(ctx, job.JobID); err != nil {
			logrus.WithField("job_id", job.JobID).WithError(err).Error("failed to mark job refunded")
		}
	}

	go func() {
		if err := SendWebhook(NewWebhook{Event: EventPreviewFailed, Payload: map[string]interface{}{
			"job_id":  job.JobID,
			"user_id": job.UserID,
			"error":   message,
		}}); err != nil {
			notification.NotifyError(err)
		}
	}()
	return nil
}
