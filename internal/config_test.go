package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_InvalidSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend url", func(c *Config) { c.Backend.BaseURL = "not a url" }, "backend"},
		{"backend timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend"},
		{"page size", func(c *Config) { c.Search.PageSize = 0 }, "search"},
		{"sort field", func(c *Config) { c.Search.DefaultSortField = "genre" }, "search"},
		{"sort direction", func(c *Config) { c.Search.DefaultSortDirection = "up" }, "search"},
		{"retry delays", func(c *Config) { c.Retry.MaxDelay = c.Retry.BaseDelay / 2 }, "retry"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry"},
		{"status mode", func(c *Config) { c.Status.Mode = "push" }, "status"},
		{"auth token", func(c *Config) { c.Auth.Mode = AuthModeToken }, "token is empty"},
		{"http port", func(c *Config) { c.App.HTTP.Port = 0 }, "Port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_QueryOptions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Search.PageSize = 25
	cfg.Search.DefaultSortField = "title"
	cfg.Search.DefaultSortDirection = "ascending"
	cfg.Retry.MaxRetries = 3

	want := query.Options{
		PageSize:      25,
		Debounce:      300 * time.Millisecond,
		SortField:     "title",
		SortDirection: models.Ascending,
		Retry: query.RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
	}
	if diff := cmp.Diff(want, cfg.QueryOptions()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}
