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

	"github.com/inkpreview/inkpreview/gateway"
)

// MockGateway is a scriptable PredictionGateway used by the service tests.
type MockGateway struct {
	CreateFunc func(ctx context.Context, input gateway.PredictionInput) (*gateway.Prediction, error)
	GetFunc    func(ctx context.Context, predictionID string) (*gateway.Prediction, error)
	CancelFunc func(ctx context.Context, predictionID string) error
}

func (m *MockGateway) CreatePrediction(ctx context.Context, input gateway.PredictionInput) (*gateway.Prediction, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, input)
	}
	return &gateway.Prediction{ID: "pred_mock", Status: "starting"}, nil
}

func (m *MockGateway) GetPrediction(ctx context.Context, predictionID string) (*gateway.Prediction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, predictionID)
	}
	return &gateway.Prediction{ID: predictionID, Status: "processing"}, nil
}

func (m *MockGateway) CancelPrediction(ctx context.Context, predictionID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, predictionID)
	}
	return nil
}
