// Package logging is the structured logging layer for Farsight Core.
//
// It is a thin wrapper over log/slog: [New] reads the logging section
// of config.yaml (level, json or text format, stdout or stderr) and
// stamps every record with service and version fields, so the only
// decision left at call sites is what to say. Subsystems take a child
// logger rather than the root:
//
//	log := logging.New(cfg.Logging, version)
//	hubLog := log.With("component", "hub")
//	hubLog.Info("client attached", "device_id", id, "role", role)
//
// Before configuration is loaded, [Default] provides a JSON info-level
// logger for early startup messages.
//
// Tokens and session credentials must never appear in records; log a
// short prefix when a token has to be correlated:
//
//	log.Info("token rejected", "token_prefix", token[:8])
package logging
