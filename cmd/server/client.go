package main

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-availability-core/internal/blob"
	"github.com/tbourn/go-availability-core/internal/config"
)

// buildClient returns the remote blob client, or nil when the local fallback
// should serve content instead. Outside production a backend that cannot be
// configured falls back with a warning; in production it is an error.
func buildClient(cfg config.Config) (blob.Client, error) {
	if cfg.Backend.URL == "" && !cfg.IsProduction() {
		log.Warn().Str("dir", cfg.Backend.FallbackDir).Msg("BACKEND_URL not set: content is stored locally and is not durable")
		return nil, nil
	}
	client, err := blob.NewHTTPClient(blob.HTTPConfig{
		BaseURL:     cfg.Backend.URL,
		APIKey:      cfg.Backend.APIKey,
		MaxBlobSize: cfg.Store.MaxBlobSize,
		Timeout:     cfg.Store.UploadTimeout + cfg.Store.QueryTimeout,
	})
	switch {
	case errors.Is(err, blob.ErrNotConfigured) && !cfg.IsProduction():
		log.Warn().Str("dir", cfg.Backend.FallbackDir).Msg("backend credentials missing: content is stored locally and is not durable")
		return nil, nil
	case err != nil:
		return nil, err
	}
	return client, nil
}
