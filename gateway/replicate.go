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

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/internal/request"
)

const replicateAPIBase = "https://api.replicate.com/v1"

// ReplicateClient implements PredictionGateway against the Replicate HTTP
// API, using direct model endpoints rather than version pinning.
type ReplicateClient struct {
	baseURL    string
	token      string
	model      string
	webhookURL string
}

// NewReplicateClient builds a client from the loaded configuration. The
// webhook callback is resolved once at construction; localhost deployments
// get none and rely on polling.
func NewReplicateClient(conf *config.Configuration) *ReplicateClient {
	return &ReplicateClient{
		baseURL:    replicateAPIBase,
		token:      conf.Replicate.Token,
		model:      conf.Replicate.Model,
		webhookURL: conf.WebhookURL(),
	}
}

type replicateInput struct {
	Prompt       string   `json:"prompt"`
	ImageInput   []string `json:"image_input"`
	OutputFormat string   `json:"output_format"`
}

type createPredictionRequest struct {
	Input               replicateInput `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

// replicateResponse covers both a prediction body and the {"detail": ...}
// shape the API uses for request-level errors.
type replicateResponse struct {
	Prediction
	Detail string `json:"detail"`
}

func (rc *ReplicateClient) newRequest(ctx context.Context, method, url string, body *createPredictionRequest) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		payload, jsonErr := request.ToJsonReq(body)
		if jsonErr != nil {
			return nil, jsonErr
		}
		req, err = http.NewRequestWithContext(ctx, method, url, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+rc.token)
	return req, nil
}

// CreatePrediction submits a render job. Billing rejections and provider
// faults come back as wrapped sentinel errors so the orchestrator can refund
// and classify without parsing messages.
func (rc *ReplicateClient) CreatePrediction(ctx context.Context, input PredictionInput) (*Prediction, error) {
	if rc.token == "" {
		return nil, errors.Wrap(ErrUnavailable, "replicate token is not configured")
	}

	body := &createPredictionRequest{
		Input: replicateInput{
			Prompt:       input.Prompt,
			ImageInput:   []string{input.BodyImageURL, input.DesignImageURL},
			OutputFormat: "jpg",
		},
	}
	if rc.webhookURL != "" {
		body.Webhook = rc.webhookURL
		body.WebhookEventsFilter = []string{"start", "completed"}
	}

	url := fmt.Sprintf("%s/models/%s/predictions", rc.baseURL, rc.model)
	req, err := rc.newRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var response replicateResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		if resp == nil {
			return nil, errors.Wrap(ErrUnavailable, err.Error())
		}
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"detail": response.Detail,
		}).Error("replicate rejected prediction create")
		return nil, rc.classifyFailure(resp.StatusCode, response.Detail)
	}

	if response.Error != "" {
		if IsBillingMessage(string(response.Error)) {
			return nil, errors.Wrap(ErrBilling, string(response.Error))
		}
		return nil, errors.New(string(response.Error))
	}

	logrus.WithField("prediction_id", response.ID).Info("prediction created")
	prediction := response.Prediction
	return &prediction, nil
}

// GetPrediction reads a prediction back. Provider-side failure is carried in
// the returned prediction, not as a call error.
func (rc *ReplicateClient) GetPrediction(ctx context.Context, predictionID string) (*Prediction, error) {
	url := fmt.Sprintf("%s/predictions/%s", rc.baseURL, predictionID)
	req, err := rc.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var response replicateResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		if resp == nil {
			return nil, errors.Wrap(ErrUnavailable, err.Error())
		}
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, rc.classifyFailure(resp.StatusCode, response.Detail)
	}

	prediction := response.Prediction
	return &prediction, nil
}

// CancelPrediction stops a running prediction. Failures are logged and
// returned but callers treat them as advisory.
func (rc *ReplicateClient) CancelPrediction(ctx context.Context, predictionID string) error {
	url := fmt.Sprintf("%s/predictions/%s/cancel", rc.baseURL, predictionID)
	req, err := rc.newRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	var response replicateResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		logrus.WithField("prediction_id", predictionID).WithError(err).Warn("failed to cancel prediction")
		if resp == nil {
			return errors.Wrap(ErrUnavailable, err.Error())
		}
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return rc.classifyFailure(resp.StatusCode, response.Detail)
	}
	return nil
}

func (rc *ReplicateClient) classifyFailure(status int, detail string) error {
	switch {
	case status == http.StatusPaymentRequired || IsBillingMessage(detail):
		return errors.Wrapf(ErrBilling, "replicate API error: %d - %s", status, detail)
	case status >= http.StatusInternalServerError:
		return errors.Wrapf(ErrUnavailable, "replicate API error: %d - %s", status, detail)
	default:
		return errors.Errorf("replicate API error: %d - %s", status, detail)
	}
}
