// Package logging provides structured logging for avrctl.
//
// It wraps log/slog with the conventions used across the module: JSON
// output by default, text for development, level filtering, and service and
// version attributes on every entry. Output can go to stdout, stderr, or a
// size-rotated file.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "./logs/avrctl.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//
// Components accept a small Logger interface so they can run with a no-op
// logger in tests:
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	exec.SetLogger(logger.With("component", "executor"))
package logging
