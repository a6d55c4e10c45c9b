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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	// DefaultInitialGrant is the free credit allotment granted to a user the
	// first time they touch the ledger.
	DefaultInitialGrant = 3

	// UnlimitedCreditSentinel is the balance reported while the deployment-wide
	// unlimited switch is on. Ledger storage is never read in that mode.
	UnlimitedCreditSentinel = 999999

	// DefaultReplicateModel is the model path submitted to the prediction API.
	DefaultReplicateModel = "google/nano-banana"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"INKPREVIEW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"INKPREVIEW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"INKPREVIEW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"INKPREVIEW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"INKPREVIEW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"INKPREVIEW_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"INKPREVIEW_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"INKPREVIEW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"INKPREVIEW_REDIS_SKIP_TLS_VERIFY"`
}

// ReplicateConfig describes the external prediction provider. PublicURL is the
// externally reachable base of this deployment; webhook delivery is only
// requested when it is set and does not point at localhost.
type ReplicateConfig struct {
	Token         string `json:"token" envconfig:"INKPREVIEW_REPLICATE_TOKEN"`
	Model         string `json:"model" envconfig:"INKPREVIEW_REPLICATE_MODEL"`
	PublicURL     string `json:"public_url" envconfig:"INKPREVIEW_PUBLIC_URL"`
	WebhookSecret string `json:"webhook_secret" envconfig:"INKPREVIEW_REPLICATE_WEBHOOK_SECRET"`
}

// CreditPolicy is the deployment-time credit switch. It is injected into the
// ledger at construction; business logic never reads the process environment.
type CreditPolicy struct {
	Unlimited    bool `json:"unlimited" envconfig:"INKPREVIEW_CREDITS_UNLIMITED"`
	InitialGrant int  `json:"initial_grant" envconfig:"INKPREVIEW_CREDITS_INITIAL_GRANT"`
}

type StripePack struct {
	PriceID string `json:"price_id"`
	Credits int    `json:"credits"`
}

type StripeConfig struct {
	WebhookSecret string       `json:"webhook_secret" envconfig:"INKPREVIEW_STRIPE_WEBHOOK_SECRET"`
	Packs         []StripePack `json:"packs"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"INKPREVIEW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"INKPREVIEW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"INKPREVIEW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" envconfig:"INKPREVIEW_PROJECT_NAME"`
	EnableTelemetry    bool             `json:"enable_telemetry" envconfig:"INKPREVIEW_ENABLE_TELEMETRY"`
	TelemetryKey       string           `json:"telemetry_key" envconfig:"INKPREVIEW_TELEMETRY_KEY"`
	MonitoringPort     string           `json:"monitoring_port" envconfig:"INKPREVIEW_MONITORING_PORT"`
	BackupDir          string           `json:"backup_dir" envconfig:"INKPREVIEW_BACKUP_DIR"`
	AwsAccessKeyId     string           `json:"aws_access_key_id"`
	AwsSecretAccessKey string           `json:"aws_secret_access_key"`
	S3BucketName       string           `json:"s3_bucket_name"`
	S3Region           string           `json:"s3_region"`
	Server             ServerConfig     `json:"server"`
	DataSource         DataSourceConfig `json:"data_source"`
	Redis              RedisConfig      `json:"redis"`
	Replicate          ReplicateConfig  `json:"replicate"`
	Credits            CreditPolicy     `json:"credits"`
	Stripe             StripeConfig     `json:"stripe"`
	Notification       Notification     `json:"notification"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("inkpreview", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called inkpreview.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Inkpreview Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Replicate.Model == "" {
		cnf.Replicate.Model = DefaultReplicateModel
	}

	if cnf.Credits.InitialGrant <= 0 {
		cnf.Credits.InitialGrant = DefaultInitialGrant
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Replicate.Token = strings.TrimSpace(cnf.Replicate.Token)
	cnf.Replicate.PublicURL = strings.TrimRight(strings.TrimSpace(cnf.Replicate.PublicURL), "/")

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.MonitoringPort == "" {
		cnf.MonitoringPort = "5002"
	}

	if cnf.BackupDir == "" {
		cnf.BackupDir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// WebhookURL returns the callback endpoint handed to the prediction provider,
// or an empty string when the deployment has no publicly reachable address.
// Localhost deployments poll instead; the provider cannot call back into them.
func (cnf *Configuration) WebhookURL() string {
	if cnf.Replicate.PublicURL == "" || strings.Contains(cnf.Replicate.PublicURL, "localhost") {
		return ""
	}
	return cnf.Replicate.PublicURL + "/webhooks/replicate"
}

// CreditsForPrice maps a Stripe price id to the credits it purchases.
func (cnf *Configuration) CreditsForPrice(priceID string) (int, bool) {
	for _, p := range cnf.Stripe.Packs {
		if p.PriceID == priceID {
			return p.Credits, true
		}
	}
	return 0, false
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.Credits.InitialGrant <= 0 {
		mockConfig.Credits.InitialGrant = DefaultInitialGrant
	}
	if mockConfig.Replicate.Model == "" {
		mockConfig.Replicate.Model = DefaultReplicateModel
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
