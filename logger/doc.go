// Package logger provides structured logging for portforge using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers carrying the scheduler's standard fields
// (node, attempt, run_id, ...).
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("scheduler")
//	log.Info("dispatched", logger.Fields(logger.FieldNode, "libfoo", logger.FieldAttempt, 1))
package logger
