package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
	"github.com/starford/mtvsearch/internal/status"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Backend BackendConfig     `yaml:"backend"`
	Search  SearchConfig      `yaml:"search"`
	Retry   RetryConfig       `yaml:"retry"`
	Status  StatusConfig      `yaml:"status"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return c.Auth.Validate()
}

// QueryOptions returns the controller settings described by the config.
func (c *Config) QueryOptions() query.Options {
	return query.Options{
		PageSize:      c.Search.PageSize,
		Debounce:      c.Search.Debounce,
		SortField:     c.Search.DefaultSortField,
		SortDirection: models.SortDirection(c.Search.DefaultSortDirection),
		Retry: query.RetryPolicy{
			MaxRetries: uint64(c.Retry.MaxRetries),
			BaseDelay:  c.Retry.BaseDelay,
			MaxDelay:   c.Retry.MaxDelay,
		},
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackendConfig points at the catalog query service.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// SearchConfig holds the query controller and view settings.
type SearchConfig struct {
	PageSize             int           `yaml:"page_size"`
	WindowSize           int           `yaml:"window_size"`
	Debounce             time.Duration `yaml:"debounce"`
	DefaultSortField     string        `yaml:"default_sort_field"`
	DefaultSortDirection string        `yaml:"default_sort_direction"`
	SessionIdle          time.Duration `yaml:"session_idle"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	fields := make([]any, 0, 5)
	for _, f := range filter.Fields() {
		fields = append(fields, f)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(500)),
		validation.Field(&c.WindowSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Debounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.DefaultSortField, validation.Required, validation.In(fields...)),
		validation.Field(&c.DefaultSortDirection, validation.Required,
			validation.In(string(models.Ascending), string(models.Descending))),
		validation.Field(&c.SessionIdle, validation.Required, validation.Min(time.Second)),
	)
}

// RetryConfig bounds busy polling of the query service.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.BaseDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxDelay, validation.Required, validation.Min(c.BaseDelay)),
	)
}

// StatusConfig controls how the database status is tracked.
type StatusConfig struct {
	Mode     string        `yaml:"mode"`
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the status configuration.
func (c *StatusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(status.ModePoll, status.ModeStream)),
		validation.Field(&c.Interval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Search: SearchConfig{
			PageSize:             10,
			WindowSize:           10,
			Debounce:             300 * time.Millisecond,
			DefaultSortField:     filter.FieldStart,
			DefaultSortDirection: string(models.Descending),
			SessionIdle:          30 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 8,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
		Status: StatusConfig{
			Mode:     status.ModePoll,
			Interval: time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
