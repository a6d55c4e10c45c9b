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
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

// RecordPayment records a pending Stripe purchase.
func (d Datasource) RecordPayment(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	if p.PaymentID == "" {
		p.PaymentID = GenerateUUIDWithSuffix("pay")
	}
	p.CreatedAt = time.Now()

	metaDataJSON, err := json.Marshal(p.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal payment metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO payments (payment_id, user_id, stripe_session_id, stripe_payment_intent_id, amount, purpose, status, meta_data, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9)
	`, p.PaymentID, p.UserID, p.StripeSessionID, p.StripePaymentIntentID, p.Amount, p.Purpose, p.Status, metaDataJSON, p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Payment with this session already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment", err)
	}

	return p, nil
}

// UpdatePaymentStatus marks the payment correlated with a Stripe checkout
// session and returns the updated row so the caller can credit the buyer.
func (d Datasource) UpdatePaymentStatus(ctx context.Context, stripeSessionID, status string) (*model.Payment, error) {
	p := model.Payment{StripeSessionID: stripeSessionID, Status: status}
	var metaDataJSON []byte

	err := d.Conn.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2
		WHERE stripe_session_id = $1
		RETURNING payment_id, user_id, COALESCE(stripe_payment_intent_id, ''), amount, purpose, meta_data, created_at
	`, stripeSessionID, status).
		Scan(&p.PaymentID, &p.UserID, &p.StripePaymentIntentID, &p.Amount, &p.Purpose, &metaDataJSON, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &p.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal payment metadata", err)
		}
	}

	return &p, nil
}
