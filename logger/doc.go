// Package logger provides structured logging built on zerolog.
//
// Loggers are component-scoped: the executor, the dispatcher and the event
// consumers each log through WithComponent so every line carries its
// origin. Field helpers keep key names uniform across packages.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("dag")
//	log.Error("node failed", logger.Fields(logger.FieldNode, "counts"))
package logger
