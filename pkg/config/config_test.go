package config

import (
	"testing"
	"time"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BUBBLEUP_POSTGRES_URL", "postgres://localhost/bubbleup?sslmode=disable")
	t.Setenv("BUBBLEUP_IDP_ISSUER_URL", "https://idp.example.com")
	t.Setenv("BUBBLEUP_IDP_CLIENT_ID", "bubbleup")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("Expected default health port 9090, got %s", cfg.Server.HealthPort)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Reconciler.Schedule != "@every 15m" {
		t.Errorf("Expected default reconciler schedule, got %s", cfg.Reconciler.Schedule)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("Expected default log level info, got %v", cfg.Observability.LogLevel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUBBLEUP_PORT", "3000")
	t.Setenv("BUBBLEUP_LOG_LEVEL", "debug")
	t.Setenv("BUBBLEUP_READ_TIMEOUT", "5s")
	t.Setenv("BUBBLEUP_RECONCILER_ENABLED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("Expected port 3000, got %s", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("Expected debug log level, got %v", cfg.Observability.LogLevel)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Reconciler.Enabled {
		t.Error("Expected reconciler to be disabled")
	}
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUBBLEUP_POSTGRES_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when postgres URL is missing")
	}
}

func TestLoadConfigRequiresIssuer(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUBBLEUP_IDP_ISSUER_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when issuer URL is missing")
	}
}

func TestValidateRejectsPortClash(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUBBLEUP_PORT", "9090")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when API and health ports collide")
	}
}

func TestValidateAdminCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BUBBLEUP_IDP_ADMIN_API_URL", "https://idp.example.com/admin")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when admin API URL is set without credentials")
	}

	t.Setenv("BUBBLEUP_IDP_ADMIN_CLIENT_ID", "svc")
	t.Setenv("BUBBLEUP_IDP_ADMIN_CLIENT_SECRET", "secret")
	t.Setenv("BUBBLEUP_IDP_ADMIN_TOKEN_URL", "https://idp.example.com/token")

	if _, err := LoadConfig(); err != nil {
		t.Errorf("Expected valid config with full admin credentials, got %v", err)
	}
}
