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

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditBalance is the per-user credit row. Credits never go observably
// negative: consumption is a conditional decrement at the storage layer and is
// rejected, not allowed to underflow.
type CreditBalance struct {
	UserID    string    `json:"user_id"`
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BodyPhoto is an uploaded body photograph, upserted idempotently by its
// natural key (user_id, image_url).
type BodyPhoto struct {
	BodyPhotoID string    `json:"body_photo_id"`
	UserID      string    `json:"user_id"`
	Part        string    `json:"part"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Design is an uploaded tattoo design, upserted idempotently by image URL.
type Design struct {
	DesignID  string    `json:"design_id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// VariantParams captures the rendering knobs attached to a preview job. They
// are persisted alongside the job so a poll response can echo them back.
type VariantParams struct {
	Variant     string  `json:"variant"`
	Scale       float64 `json:"scale"`
	RotationDeg float64 `json:"rotation_deg"`
	Opacity     float64 `json:"opacity"`
}

// PromptParams is the input to prompt derivation. The derivation itself is a
// pure function of these fields.
type PromptParams struct {
	Part        string
	Variant     string
	Scale       float64
	RotationDeg float64
	Opacity     float64
}

// PreviewJob is one user-initiated generation request. JobID is the
// correlation key returned to the client; PredictionID correlates the external
// prediction once the gateway has accepted the job.
type PreviewJob struct {
	JobID           string        `json:"job_id"`
	UserID          string        `json:"user_id"`
	BodyPhotoID     string        `json:"body_photo_id"`
	DesignID        string        `json:"design_id"`
	Status          JobStatus     `json:"status"`
	PredictionID    string        `json:"prediction_id,omitempty"`
	Prompt          string        `json:"prompt"`
	Seed            int64         `json:"seed"`
	VariantParams   VariantParams `json:"variant_params"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	CreditsRefunded bool          `json:"credits_refunded"`
	CreatedAt       time.Time     `json:"created_at"`
}

// PreviewResult is one produced artifact. For a given job no two results share
// an image URL; insertion dedupes on that key.
type PreviewResult struct {
	ResultID  string    `json:"result_id"`
	JobID     string    `json:"job_id"`
	ImageURL  string    `json:"image_url"`
	ThumbURL  string    `json:"thumb_url"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment purposes and statuses.
const (
	PaymentPurposeCreditPack   = "credit-pack"
	PaymentPurposeSubscription = "subscription"

	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment records a Stripe purchase that tops up the credit ledger once the
// completion webhook confirms it.
type Payment struct {
	PaymentID             string                 `json:"payment_id"`
	UserID                string                 `json:"user_id"`
	StripeSessionID       string                 `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string                 `json:"stripe_payment_intent_id,omitempty"`
	Amount                decimal.Decimal        `json:"amount"`
	Purpose               string                 `json:"purpose"`
	Status                string                 `json:"status"`
	MetaData              map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
}
