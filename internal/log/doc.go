// Package log provides slog loggers that never write credentials or image
// payloads.
//
// SecureHandler wraps any slog.Handler. Before a record is handled it:
//   - masks attributes whose key names a credential (api_key, token, ...)
//   - masks values that look like provider keys, bearer tokens or JWTs
//   - masks sk- keys embedded in messages and error strings
//   - shortens base64 data URLs to their MIME type and size
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("calling model", "provider", "openai", "api_key", key)
//	// api_key=***REDACTED***
package log
