// Package logging provides structured logging utilities for depobot.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog (text or JSON handlers)
//   - Consistent attribute naming (meeting_id, bot_id, stage, ...)
//   - PII sanitization (user id anonymization, token masking)
//
// # Usage Patterns
//
// Scope a logger to one webhook-triggered run:
//
//	logger := logging.WithMeeting(slog.Default(), meetingID)
//	logger.Info("stage finished",
//	    logging.Stage("publish"),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token refreshed",
//	    logging.UserHash(userID))
//
// # Security Considerations
//
//   - Zoom user ids are hashed to allow correlation without exposing them
//   - Tokens are never logged directly
package logging
