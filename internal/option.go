package internal

import "github.com/starford/mtvsearch/internal/backend"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	httpClient backend.HTTPClient
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithHTTPClient overrides the client used to reach the query service.
func WithHTTPClient(c backend.HTTPClient) Option {
	return func(a *application) {
		a.httpClient = c
	}
}
