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
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/internal/notification"
	"github.com/inkpreview/inkpreview/model"
)

// CompleteCheckout applies a confirmed Stripe checkout to the credit ledger.
// The payment row is the idempotency guard: the session ID is unique, so a
// redelivered completion event hits a conflict and the ledger is not credited
// twice.
func (i *InkPreview) CompleteCheckout(ctx context.Context, payment *model.Payment, priceID string) (int64, error) {
	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	credits, ok := conf.CreditsForPrice(priceID)
	if !ok {
		return 0, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("Unknown price: %s", priceID), nil)
	}

	payment.Purpose = model.PaymentPurposeCreditPack
	payment.Status = model.PaymentStatusSucceeded

	if _, err := i.datasource.RecordPayment(ctx, payment); err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrConflict {
			logrus.WithField("stripe_session_id", payment.StripeSessionID).Info("checkout already applied")
			return i.GetCredits(ctx, payment.UserID)
		}
		return 0, err
	}

	balance, err := i.AddCredits(ctx, payment.UserID, int64(credits))
	if err != nil {
		notification.NotifyError(err)
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": payment.UserID,
		"credits": credits,
		"balance": balance,
	}).Info("credit pack applied")

	go func() {
		if err := SendWebhook(NewWebhook{Event: EventCreditsPurchased, Payload: map[string]interface{}{
			"user_id": payment.UserID,
			"credits": credits,
			"balance": balance,
		}}); err != nil {
			notification.NotifyError(err)
		}
	}()

	return balance, nil
}

// FailCheckout marks a pending payment as failed after Stripe reports the
// async payment method never settled. No credits move.
func (i *InkPreview) FailCheckout(ctx context.Context, stripeSessionID string) error {
	_, err := i.datasource.UpdatePaymentStatus(ctx, stripeSessionID, model.PaymentStatusFailed)
	return err
}
