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
	"embed"

	"github.com/sirupsen/logrus"

	"github.com/inkpreview/inkpreview/cache"
	"github.com/inkpreview/inkpreview/config"
	"github.com/inkpreview/inkpreview/database"
	"github.com/inkpreview/inkpreview/gateway"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// InkPreview is the service core. Every HTTP handler and worker dispatches into
// methods on this struct; it owns the datasource and the prediction gateway.
type InkPreview struct {
	datasource database.IDataSource
	gateway    gateway.PredictionGateway
	cache      cache.Cache
	credits    config.CreditPolicy
}

// New wires the service core together. The credit policy is captured from
// configuration here, once, so the ledger paths never consult the environment.
// The cache is optional; a deployment without a reachable Redis runs uncached.
func New(db database.IDataSource, gw gateway.PredictionGateway) (*InkPreview, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	ca, err := cache.NewCache()
	if err != nil {
		logrus.WithError(err).Warn("cache unavailable, provider reads will not be throttled")
		ca = nil
	}

	return &InkPreview{
		datasource: db,
		gateway:    gw,
		cache:      ca,
		credits:    configuration.Credits,
	}, nil
}
