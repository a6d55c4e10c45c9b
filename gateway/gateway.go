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

// Package gateway talks to the external image generation provider. The rest
// of the system only sees the PredictionGateway interface and the Prediction
// type; provider quirks (flexible output shapes, billing failures dressed up
// as API errors) are absorbed here.
package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/inkpreview/inkpreview/model"
)

// ErrBilling marks a submission rejected because the provider account is out
// of credit. Callers surface this differently from a generic provider fault:
// it is an operator problem, not a user problem, and the user's own credit
// must still be returned.
var ErrBilling = errors.New("prediction provider billing error")

// ErrUnavailable marks a provider that could not be reached or answered with
// a server fault.
var ErrUnavailable = errors.New("prediction provider unavailable")

// PredictionInput is everything the provider needs to render one preview.
type PredictionInput struct {
	Prompt         string
	BodyImageURL   string
	DesignImageURL string
}

// Output is the provider's result artifact list. The wire format is either a
// single URL string or a list of them depending on the model; both decode
// into the same slice.
type Output []string

func (o *Output) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*o = nil
			return nil
		}
		*o = Output{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*o = many
	return nil
}

// FlexibleError decodes the provider's error field, which is a string on some
// models and a structured object on others. Non-string shapes are kept as
// their raw JSON text.
type FlexibleError string

func (f *FlexibleError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleError(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = FlexibleError(data)
	return nil
}

// Prediction is the provider-side view of a job.
type Prediction struct {
	ID     string                 `json:"id"`
	Status model.PredictionStatus `json:"status"`
	Output Output                 `json:"output"`
	Error  FlexibleError          `json:"error"`
	Logs   string                 `json:"logs"`
}

// PredictionGateway submits jobs to the provider and reads them back.
type PredictionGateway interface {
	// CreatePrediction submits a render and returns the provider's handle.
	CreatePrediction(ctx context.Context, input PredictionInput) (*Prediction, error)
	// GetPrediction fetches the current provider-side state. A prediction
	// that failed on the provider is still a successful fetch; the failure
	// lives in the prediction's own status and error fields.
	GetPrediction(ctx context.Context, predictionID string) (*Prediction, error)
	// CancelPrediction asks the provider to stop a prediction. Best effort.
	CancelPrediction(ctx context.Context, predictionID string) error
}

// IsBillingMessage reports whether a provider error text describes an
// account billing problem rather than a bad request.
func IsBillingMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "insufficient credit") || strings.Contains(lower, "billing")
}
