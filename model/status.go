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

package model

import "strings"

// JobStatus is the internal lifecycle of a preview job.
// queued -> running -> {succeeded, failed}; terminal states are absorbing.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// PredictionStatus is the status vocabulary of the external prediction
// provider. It is mapped, never stored.
type PredictionStatus string

const (
	PredictionStarting   PredictionStatus = "starting"
	PredictionProcessing PredictionStatus = "processing"
	PredictionSucceeded  PredictionStatus = "succeeded"
	PredictionFailed     PredictionStatus = "failed"
	PredictionCanceled   PredictionStatus = "canceled"
)

// MapPredictionStatus translates a provider status into the internal job
// lifecycle. Unknown provider statuses map to running so the job stays
// reconcilable rather than wedged.
func MapPredictionStatus(s PredictionStatus) JobStatus {
	switch s {
	case PredictionStarting, PredictionProcessing:
		return JobStatusRunning
	case PredictionSucceeded:
		return JobStatusSucceeded
	case PredictionFailed, PredictionCanceled:
		return JobStatusFailed
	default:
		return JobStatusRunning
	}
}

// IsUnreachableAssetError reports whether a provider error indicates the input
// asset URLs were not publicly reachable, which happens when a development
// deployment hands the provider localhost URLs. Jobs failed this way are not
// refunded; the failure is a deployment misconfiguration, not a billable
// generation failure.
func IsUnreachableAssetError(providerErr string) bool {
	return strings.Contains(providerErr, "localhost") ||
		strings.Contains(providerErr, "Connection refused")
}

// UnreachableAssetMessage is the user-facing explanation attached to jobs
// failed by IsUnreachableAssetError.
const UnreachableAssetMessage = "Images not accessible: Please use ngrok or deploy to production for testing with Replicate API"
