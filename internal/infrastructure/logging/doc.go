// Package logging provides structured logging for the ECHONET Lite bridge.
//
// This package wraps github.com/rs/zerolog behind the key-value calling
// convention the rest of the code base uses, so components depend only on a
// small Debug/Info/Warn/Error interface.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Console text output for development (human-readable)
//   - Default fields (service, version) and a timestamp on every entry
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("discovery completed", "devices", 2)
//	logger.Error("failed to connect", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
