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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

func packsConfig() *config.Configuration {
	conf := &config.Configuration{}
	conf.Stripe.Packs = []config.StripePack{
		{PriceID: "price_small", Credits: 10},
		{PriceID: "price_large", Credits: 50},
	}
	return conf
}

func TestCompleteCheckout_CreditsLedger(t *testing.T) {
	core, mock, _ := newTestCore(t, packsConfig())
	userID := gofakeit.UUID()

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO user_credits").
		WithArgs(userID, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(12)))

	balance, err := core.CompleteCheckout(context.Background(), &model.Payment{
		UserID:          userID,
		StripeSessionID: "cs_test_1",
		Amount:          decimal.NewFromFloat(9.99),
	}, "price_small")
	assert.NoError(t, err)
	assert.Equal(t, int64(12), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckout_RedeliveredEventIsIdempotent(t *testing.T) {
	core, mock, _ := newTestCore(t, packsConfig())
	userID := gofakeit.UUID()

	// The session row already exists; the ledger must not be credited again.
	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT credits FROM user_credits").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(12)))

	balance, err := core.CompleteCheckout(context.Background(), &model.Payment{
		UserID:          userID,
		StripeSessionID: "cs_test_1",
		Amount:          decimal.NewFromFloat(9.99),
	}, "price_small")
	assert.NoError(t, err)
	assert.Equal(t, int64(12), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckout_UnknownPrice(t *testing.T) {
	core, mock, _ := newTestCore(t, packsConfig())

	_, err := core.CompleteCheckout(context.Background(), &model.Payment{
		UserID:          gofakeit.UUID(),
		StripeSessionID: "cs_test_2",
		Amount:          decimal.NewFromFloat(1.00),
	}, "price_unknown")
	assert.Error(t, err)

	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailCheckout(t *testing.T) {
	core, mock, _ := newTestCore(t, packsConfig())

	mock.ExpectQuery("UPDATE payments").
		WithArgs("cs_test_3", model.PaymentStatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{
			"payment_id", "user_id", "stripe_payment_intent_id", "amount",
			"purpose", "meta_data", "created_at",
		}).AddRow("pay_1", gofakeit.UUID(), "", "9.99",
			model.PaymentPurposeCreditPack, []byte("{}"), gofakeit.Date()))

	err := core.FailCheckout(context.Background(), "cs_test_3")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
