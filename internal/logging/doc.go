// Package logging provides structured logging utilities for cozictl.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Username anonymization and token masking
//   - Consistent attribute naming across the codebase
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.month")
//	logger.Info("fetched month",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("login succeeded",
//	    logging.UserHash(username))
//
// # Security Considerations
//
//   - Usernames are hashed to prevent PII leakage while allowing correlation
//   - Passwords and bearer tokens are never logged directly
package logging
