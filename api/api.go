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
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/inkpreview/inkpreview"
	"github.com/inkpreview/inkpreview/api/middleware"
	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/internal/apierror"
)

type Api struct {
	inkpreview *inkpreview.InkPreview
	router     *gin.Engine
	secure     bool
}

// Router wires the HTTP surface. User routes sit behind the deployment
// secret and user identification; provider callbacks authenticate by
// signature instead and stay outside both.
func (a Api) Router() *gin.Engine {
	router := a.router

	guards := []gin.HandlerFunc{}
	if a.secure {
		guards = append(guards, middleware.SecretKeyAuthMiddleware())
	}
	guards = append(guards, middleware.RequireUser())

	previews := router.Group("/previews", guards...)
	previews.POST("", a.CreatePreview)
	previews.GET("", a.ListPreviews)
	previews.GET("/:id", a.GetPreview)
	previews.POST("/:id/cancel", a.CancelPreview)

	credits := router.Group("/credits", guards...)
	credits.GET("", a.GetCredits)

	router.POST("/webhooks/replicate", a.ReplicateWebhook)
	router.POST("/webhooks/stripe", a.StripeWebhook)

	return a.router
}

func NewAPI(i *inkpreview.InkPreview) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("inkpreview"))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{inkpreview: i, router: r, secure: conf.Server.Secure}
}

// respondError writes the error out with its mapped status. Structured errors
// keep their code and flatten their detail fields into the body so callers can
// act on them, for example the remaining balance on a credit shortfall.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)

	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"error": apiErr.Message, "code": apiErr.Code}
	if details, ok := apiErr.Details.(map[string]interface{}); ok {
		for k, v := range details {
			if _, taken := body[k]; !taken {
				body[k] = v
			}
		}
	} else if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.JSON(status, body)
}
