// Package logger wraps zap for the packager CLI:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - leveled helpers (Infof, ErrorKV, etc.) that read the logger from a context.
//
// Packages never hold a logger of their own; they take it from the context so that
// the name assigned by the entry point shows up on every line.
package logger
