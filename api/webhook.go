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
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v78"
	stripewebhook "github.com/stripe/stripe-go/v78/webhook"

	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/gateway"
	"github.com/inkpreview/inkpreview/model"
)

// ReplicateWebhook receives prediction lifecycle callbacks from the provider.
// When a webhook secret is configured the payload signature is verified
// before the update is applied; deployments without one accept unsigned
// callbacks, which matches a polling-first local setup.
func (a Api) ReplicateWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if secret := conf.Replicate.WebhookSecret; secret != "" {
		if !verifyProviderSignature(c.Request, body, secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		}
	}

	var prediction gateway.Prediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook data"})
		return
	}

	if err := a.inkpreview.HandlePredictionUpdate(c.Request.Context(), &prediction); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// verifyProviderSignature checks the svix-style signature scheme the provider
// signs callbacks with: HMAC-SHA256 over "id.timestamp.body" keyed by the
// base64 portion of the whsec_ secret.
func verifyProviderSignature(r *http.Request, body []byte, secret string) bool {
	webhookID := r.Header.Get("webhook-id")
	timestamp := r.Header.Get("webhook-timestamp")
	signatures := r.Header.Get("webhook-signature")
	if webhookID == "" || timestamp == "" || signatures == "" {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(webhookID + "." + timestamp + "."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, versioned := range strings.Split(signatures, " ") {
		parts := strings.SplitN(versioned, ",", 2)
		if len(parts) != 2 {
			continue
		}
		if hmac.Equal([]byte(parts[1]), []byte(expected)) {
			return true
		}
	}
	return false
}

// StripeWebhook settles credit pack purchases. The event signature is always
// verified; an unverifiable event is dropped with 400 so Stripe retries it.
func (a Api) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	event, err := stripewebhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), conf.Stripe.WebhookSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session payload"})
			return
		}

		payment := &model.Payment{
			UserID:          session.ClientReferenceID,
			StripeSessionID: session.ID,
			Amount:          decimal.New(session.AmountTotal, -2),
		}
		if session.PaymentIntent != nil {
			payment.StripePaymentIntentID = session.PaymentIntent.ID
		}

		balance, err := a.inkpreview.CompleteCheckout(c.Request.Context(), payment, session.Metadata["price_id"])
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "credits": balance})

	case "checkout.session.async_payment_failed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session payload"})
			return
		}
		if err := a.inkpreview.FailCheckout(c.Request.Context(), session.ID); err != nil {
			logrus.WithField("stripe_session_id", session.ID).WithError(err).Warn("failed to mark checkout failed")
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
