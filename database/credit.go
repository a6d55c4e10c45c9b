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
	"errors"

	"github.com/lib/pq"

	"github.com/inkpreview/inkpreview/internal/apierror"
)

// CreateCreditBalance creates the ledger row for a user. A row that already
// exists is left untouched, which makes the one-time free allotment safe to
// grant on every submission path.
func (d Datasource) CreateCreditBalance(ctx context.Context, userID string, credits int64) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, credits)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to initialize credits", err)
	}
	return nil
}

// GetCreditBalance returns the user's current balance. A user without a
// ledger row has a balance of zero.
func (d Datasource) GetCreditBalance(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT credits FROM user_credits WHERE user_id = $1
	`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read credit balance", err)
	}
	return credits, nil
}

// ConsumeCredits decrements the balance only when enough credit remains. The
// check and the decrement are one conditional UPDATE, so two concurrent
// consumers racing for the last credit cannot both win. Returns the remaining
// balance and whether the decrement happened.
func (d Datasource) ConsumeCredits(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	var remaining int64
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE user_credits
		SET credits = credits - $2, updated_at = NOW()
		WHERE user_id = $1 AND credits >= $2
		RETURNING credits
	`, userID, amount).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Not enough credit (or no row). Report the observed balance.
			balance, balErr := d.GetCreditBalance(ctx, userID)
			if balErr != nil {
				return 0, false, balErr
			}
			return balance, false, nil
		}
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to consume credits", err)
	}
	return remaining, true, nil
}

// AddCredits creates the row with the given amount or increments an existing
// one. The increment references the stored column, not a previously read
// value, so it is safe against concurrent consumption.
func (d Datasource) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO user_credits (user_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET credits = user_credits.credits + EXCLUDED.credits, updated_at = NOW()
		RETURNING credits
	`, userID, amount).Scan(&balance)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
			return 0, apierror.NewAPIError(apierror.ErrConflict, "Credit balance cannot go negative", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to add credits", err)
	}
	return balance, nil
}
