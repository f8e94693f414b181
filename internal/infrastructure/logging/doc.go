// Package logging provides structured logging for astroconsole.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and the same level filtering.
//
// # Configuration
//
//	"logging": {
//	    "level": "info",     // debug, info, warn, error
//	    "format": "text",    // text, json
//	    "output": "stdout"   // stdout, stderr
//	}
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected to INDI server", "address", addr)
//	logger.Error("session failed", "session", id, "error", err)
package logging
