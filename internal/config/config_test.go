package config

import (
	"strings"
	"testing"
	"time"
)

func localConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "inspection"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := localConfig()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := localConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Legal.NOVDeadline != 30*day || c.Legal.NOODeadline != 60*day {
		t.Fatalf("unexpected legal defaults: %+v", c.Legal)
	}
	if c.Billing.Currency != "PHP" || c.Billing.RedriveCron != "@every 1m" {
		t.Fatalf("unexpected billing defaults: %+v", c.Billing)
	}
	if c.RabbitMQ.BillingQueue != "billing.penalties" || c.MinIO.Bucket != "inspection-checklists" {
		t.Fatalf("unexpected queue/bucket defaults")
	}
	if c.Reporting.QueueCountsTTL != 15*time.Second || c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected ttl defaults")
	}
}

func TestValidate_MemoryStoreSkipsDatabase(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "dev", Port: 8080, StoreDriver: "memory"},
		Auth: AuthConfig{JWTSecret: "secret", DevLogin: true},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.UsesPostgres() {
		t.Fatalf("expected memory driver")
	}
}

func TestValidate_ProductionRequiresCollaborators(t *testing.T) {
	c := localConfig()
	c.App.Env = "production"
	c.App.StoreDriver = "memory"
	c.Auth.DevLogin = true
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected production errors")
	}
	for _, want := range []string{"STORE_DRIVER", "AUTH_DEV_LOGIN", "SENDGRID_API_KEY", "RABBITMQ_URL", "MINIO_ENDPOINT", "JWT_ISSUER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate_SendGridSenderMustBeAddress(t *testing.T) {
	c := localConfig()
	c.SendGrid = SendGridConfig{APIKey: "SG.x", FromEmail: "nobody"}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "SENDGRID_FROM_EMAIL") {
		t.Fatalf("expected sender error, got %v", err)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LEGAL_NOV_DEADLINE_DAYS", "15")
	t.Setenv("BILLING_CURRENCY", "usd")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9090 || c.Legal.NOVDeadline != 15*day || c.Billing.Currency != "USD" {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoad_RejectsBadInteger(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_PORT") {
		t.Fatalf("expected APP_PORT parse error, got %v", err)
	}
}
