package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("COLLECTOR_URL", "https://script.google.com/macros/s/test/exec")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.StoreDriver != StoreDriverSQLite {
		t.Errorf("StoreDriver = %s, want sqlite", cfg.StoreDriver)
	}
	if cfg.ResyncGracePeriod != 5*time.Second {
		t.Errorf("ResyncGracePeriod = %s, want 5s", cfg.ResyncGracePeriod)
	}
	if cfg.CollectorTimeout != 15*time.Second {
		t.Errorf("CollectorTimeout = %s, want 15s", cfg.CollectorTimeout)
	}
	if cfg.ProbeURL != cfg.CollectorURL {
		t.Errorf("ProbeURL = %s, want collector url", cfg.ProbeURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_PER_SEC", "2")
	t.Setenv("RESYNC_GRACE_PERIOD", "750ms")
	t.Setenv("PROBE_URL", "https://probe.example.com/ping")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 2 {
		t.Errorf("RateLimitPerSec = %d, want 2", cfg.RateLimitPerSec)
	}
	if cfg.ResyncGracePeriod != 750*time.Millisecond {
		t.Errorf("ResyncGracePeriod = %s, want 750ms", cfg.ResyncGracePeriod)
	}
	if cfg.ProbeURL != "https://probe.example.com/ping" {
		t.Errorf("ProbeURL = %s", cfg.ProbeURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("COLLECTOR_URL", "")
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_StoreDriverValidation(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "postgres without dsn", env: map[string]string{"STORE_DRIVER": "postgres"}, wantErr: true},
		{name: "postgres with dsn", env: map[string]string{"STORE_DRIVER": "postgres", "DATABASE_DSN": "host=localhost"}},
		{name: "redis without url", env: map[string]string{"STORE_DRIVER": "redis"}, wantErr: true},
		{name: "redis with url", env: map[string]string{"STORE_DRIVER": "REDIS", "REDIS_URL": "redis://localhost:6379/0"}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "indexeddb"}, wantErr: true},
		{name: "empty form catalog", env: map[string]string{"FORM_TYPES": " ; "}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_FormTypeList(t *testing.T) {
	cfg := Config{FormTypes: "DADOS ACIDENTE; RECIBO BATIDA ;;CROQUI"}

	got := cfg.FormTypeList()
	want := []string{"DADOS ACIDENTE", "RECIBO BATIDA", "CROQUI"}
	if len(got) != len(want) {
		t.Fatalf("FormTypeList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FormTypeList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
