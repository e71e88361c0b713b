package config

import (
	"github.com/cardexhq/cardex/cardex"
)

// WebAppConfig contains web-specific configuration layered over the shared
// application config.
type WebAppConfig struct {
	Config      *cardex.Config
	Debug       bool
	Environment string
}

// NewWebAppConfig creates a new web app configuration
func NewWebAppConfig(cfg *cardex.Config, debug bool) *WebAppConfig {
	environment := "production"
	if debug {
		environment = "development"
	}

	return &WebAppConfig{
		Config:      cfg,
		Debug:       debug,
		Environment: environment,
	}
}

// GetServerConfig returns the HTTP server configuration
func (w *WebAppConfig) GetServerConfig() cardex.ServerConfig {
	return w.Config.Server
}

// GetCatalogConfig returns the card catalog configuration
func (w *WebAppConfig) GetCatalogConfig() cardex.CatalogConfig {
	return w.Config.Catalog
}

// GetSpacesConfig returns the spaces configuration
func (w *WebAppConfig) GetSpacesConfig() cardex.SpacesConfig {
	return w.Config.Spaces
}

// GetLogConfig returns the log configuration
func (w *WebAppConfig) GetLogConfig() cardex.LogConfig {
	return w.Config.Log
}
