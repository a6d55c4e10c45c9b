package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
	if cnf.Credits.InitialGrant != DefaultInitialGrant {
		t.Errorf("Expected default initial grant %d, got %d", DefaultInitialGrant, cnf.Credits.InitialGrant)
	}
	if cnf.Replicate.Model != DefaultReplicateModel {
		t.Errorf("Expected default model %s, got %s", DefaultReplicateModel, cnf.Replicate.Model)
	}
}

func TestWebhookURL(t *testing.T) {
	cnf := Configuration{}
	if got := cnf.WebhookURL(); got != "" {
		t.Errorf("Expected empty webhook URL without public URL, got %q", got)
	}

	cnf.Replicate.PublicURL = "http://localhost:3000"
	if got := cnf.WebhookURL(); got != "" {
		t.Errorf("Expected empty webhook URL for localhost deployment, got %q", got)
	}

	cnf.Replicate.PublicURL = "https://inkpreview.example.com"
	want := "https://inkpreview.example.com/webhooks/replicate"
	if got := cnf.WebhookURL(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCreditsForPrice(t *testing.T) {
	cnf := Configuration{
		Stripe: StripeConfig{
			Packs: []StripePack{
				{PriceID: "price_small", Credits: 10},
				{PriceID: "price_large", Credits: 50},
			},
		},
	}

	credits, ok := cnf.CreditsForPrice("price_large")
	if !ok || credits != 50 {
		t.Errorf("Expected 50 credits for price_large, got %d (ok=%v)", credits, ok)
	}

	_, ok = cnf.CreditsForPrice("price_unknown")
	if ok {
		t.Error("Expected lookup miss for unknown price id")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "inkpreview.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	data, err := json.Marshal(sampleConfig)
	if err != nil {
		t.Fatalf("Unable to marshal sample config: %v", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Unable to close temporary file: %v", err)
	}

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile returned error: %v", err)
	}

	cnf, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if cnf.ProjectName != "Temp Project" {
		t.Errorf("Expected project name 'Temp Project', got %q", cnf.ProjectName)
	}
	if cnf.Credits.InitialGrant != DefaultInitialGrant {
		t.Errorf("Expected default initial grant, got %d", cnf.Credits.InitialGrant)
	}
}
