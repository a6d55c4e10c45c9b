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

	"github.com/inkpreview/inkpreview/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	credit        // Interface for credit ledger operations
	asset         // Interface for body photo and design operations
	previewJob    // Interface for preview job operations
	previewResult // Interface for preview result operations
	payment       // Interface for payment operations
}

// credit defines the atomic ledger operations. ConsumeCredits and AddCredits
// are single conditional statements at the storage layer; the ledger row is
// never mutated through read-then-write.
type credit interface {
	CreateCreditBalance(ctx context.Context, userID string, credits int64) error                   // Creates a ledger row if absent; no-op when one exists
	GetCreditBalance(ctx context.Context, userID string) (int64, error)                           // Returns the current balance, zero when no row exists
	ConsumeCredits(ctx context.Context, userID string, amount int64) (int64, bool, error)         // Conditionally decrements; reports the remaining balance and whether it happened
	AddCredits(ctx context.Context, userID string, amount int64) (int64, error)                   // Upserts and increments; returns the new balance
}

// asset defines idempotent upserts for the two input entities, keyed by their
// natural keys.
type asset interface {
	UpsertBodyPhoto(ctx context.Context, userID, part, imageURL string) (*model.BodyPhoto, error) // Get-or-create by (user_id, image_url)
	UpsertDesign(ctx context.Context, title, imageURL string) (*model.Design, error)              // Get-or-create by image_url
}

// previewJob defines methods for handling preview jobs. ClaimTerminalTransition
// is the single compare-and-swap primitive both reconciliation triggers go
// through; it is the only way a job reaches a terminal state.
type previewJob interface {
	CreatePreviewJob(ctx context.Context, job *model.PreviewJob) (*model.PreviewJob, error)                                  // Records a new job
	GetPreviewJob(ctx context.Context, jobID string) (*model.PreviewJob, error)                                             // Retrieves a job by ID
	GetPreviewJobByPredictionID(ctx context.Context, predictionID string) (*model.PreviewJob, error)                        // Retrieves a job by its external prediction ID
	AttachPrediction(ctx context.Context, jobID, predictionID string, status model.JobStatus) error                         // Stores the external ID and the mapped initial status
	MarkJobRunning(ctx context.Context, jobID string) error                                                                 // Moves queued to running; no-op otherwise
	ClaimTerminalTransition(ctx context.Context, jobID string, to model.JobStatus, errorMessage string) (bool, error)        // CAS from {queued,running} to a terminal status; reports whether this call won
	MarkJobRefunded(ctx context.Context, jobID string) error                                                                // Records that the failure refund was applied
	GetPreviewJobsByUser(ctx context.Context, userID string, limit, offset int) ([]model.PreviewJob, error)                 // Lists a user's jobs, newest first
}

// previewResult defines methods for handling produced artifacts.
type previewResult interface {
	InsertResultIfAbsent(ctx context.Context, result *model.PreviewResult) (*model.PreviewResult, bool, error) // Inserts unless the (job, URL) pair exists; reports whether a row was written
	GetResultsByJob(ctx context.Context, jobID string) ([]model.PreviewResult, error)                          // Lists results for a job, oldest first
}

// payment defines methods for recording Stripe purchases.
type payment interface {
	RecordPayment(ctx context.Context, p *model.Payment) (*model.Payment, error)                                     // Records a new payment
	UpdatePaymentStatus(ctx context.Context, stripeSessionID, status string) (*model.Payment, error)                 // Marks a payment row and returns it for crediting
}
