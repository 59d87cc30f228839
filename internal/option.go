package internal

import "github.com/starford/munin/internal/vecindex"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	embed  vecindex.EmbeddingFunc
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithEmbeddingFunc overrides the embedding function built from the
// vector configuration. Used in tests to avoid a live provider.
func WithEmbeddingFunc(f vecindex.EmbeddingFunc) Option {
	return func(a *application) {
		a.embed = f
	}
}
