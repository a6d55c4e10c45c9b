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

	"github.com/sirupsen/logrus"

	"github.com/inkpreview/inkpreview/config"
)

// previewCost is the ledger charge for one preview generation.
const previewCost int64 = 1

// InitializeCredits grants the one-time free allotment. Safe to call on every
// submission; an existing ledger row is never touched, so a user who has
// spent their grant does not get it back.
func (i *InkPreview) InitializeCredits(ctx context.Context, userID string) error {
	if i.credits.Unlimited {
		return nil
	}
	return i.datasource.CreateCreditBalance(ctx, userID, int64(i.credits.InitialGrant))
}

// GetCredits reports the user's balance. Unlimited deployments report the
// sentinel so clients can render the tier without a special case.
func (i *InkPreview) GetCredits(ctx context.Context, userID string) (int64, error) {
	if i.credits.Unlimited {
		return config.UnlimitedCreditSentinel, nil
	}
	return i.datasource.GetCreditBalance(ctx, userID)
}

// ConsumeCredit charges one credit for a preview. The returned bool reports
// whether the charge was applied; in unlimited mode it always is and nothing
// is written.
func (i *InkPreview) ConsumeCredit(ctx context.Context, userID string) (int64, bool, error) {
	if i.credits.Unlimited {
		return config.UnlimitedCreditSentinel, true, nil
	}
	return i.datasource.ConsumeCredits(ctx, userID, previewCost)
}

// RefundCredit returns the preview charge after a generation failed. In
// unlimited mode nothing was consumed, so there is nothing to return.
func (i *InkPreview) RefundCredit(ctx context.Context, userID string) error {
	if i.credits.Unlimited {
		return nil
	}
	balance, err := i.datasource.AddCredits(ctx, userID, previewCost)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"balance": balance,
	}).Info("credit refunded after failed generation")
	return nil
}

// AddCredits applies a purchased credit pack to the user's balance.
func (i *InkPreview) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	return i.datasource.AddCredits(ctx, userID, amount)
}
